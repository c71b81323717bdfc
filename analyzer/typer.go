package analyzer

import (
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// arrayType is the abstract type assigned to array construction results.
var arrayType = jstype.Object("Array",
	[]string{"length"},
	[]string{"push", "pop", "shift", "unshift", "slice", "splice", "indexOf", "concat", "join", "fill", "sort", "reverse"})

// Typer is an abstract interpreter computing a conservative type per
// variable. Types only ever widen: at control-flow merges the branch result
// is joined with the type before the branch, and anything unknown is
// Anything.
type Typer struct {
	types map[il.Variable]jstype.Type

	// frames records, per open block, the pre-block type of every variable
	// retyped inside it, so branch effects can be joined at block boundaries.
	frames []map[il.Variable]savedType
}

type savedType struct {
	typ     jstype.Type
	existed bool
}

// NewTyper creates an empty typer.
func NewTyper() *Typer {
	return &Typer{types: make(map[il.Variable]jstype.Type)}
}

// Reset discards all inferred types.
func (t *Typer) Reset() {
	t.types = make(map[il.Variable]jstype.Type)
	t.frames = t.frames[:0]
}

// Type returns the inferred type of v, or Anything when nothing is known.
func (t *Typer) Type(v il.Variable) jstype.Type {
	if typ, ok := t.types[v]; ok {
		return typ
	}
	return jstype.Anything
}

// setType records a new type for v, remembering the previous binding in the
// innermost open block for later joining.
func (t *Typer) setType(v il.Variable, typ jstype.Type) {
	if n := len(t.frames); n > 0 {
		frame := t.frames[n-1]
		if _, recorded := frame[v]; !recorded {
			old, existed := t.types[v]
			frame[v] = savedType{typ: old, existed: existed}
		}
	}
	t.types[v] = typ
}

// mergeTopFrame joins the effects of the innermost block with the state
// before it, then drops the frame.
func (t *Typer) mergeTopFrame() {
	n := len(t.frames)
	if n == 0 {
		return
	}
	frame := t.frames[n-1]
	t.frames = t.frames[:n-1]
	for v, saved := range frame {
		if !saved.existed {
			delete(t.types, v)
			continue
		}
		t.types[v] = saved.typ.Union(t.types[v])
	}
}

// Analyze advances the typer by one instruction.
func (t *Typer) Analyze(instr il.Instruction) {
	isEnd, isStart := instr.IsBlockEnd(), instr.IsBlockStart()
	if isEnd {
		t.mergeTopFrame()
	}
	if isStart {
		t.frames = append(t.frames, make(map[il.Variable]savedType))
	}
	t.transfer(instr)
}

// transfer applies the per-opcode typing rule.
func (t *Typer) transfer(instr il.Instruction) {
	op := instr.Op
	out := func(typ jstype.Type) {
		t.setType(instr.Output(), typ)
	}
	innerDefaults := func(typ jstype.Type) {
		for _, v := range instr.InnerOutputs() {
			t.setType(v, typ)
		}
	}

	switch op.Opcode {
	case il.OpLoadInteger:
		out(jstype.Integer)
	case il.OpLoadBigInt:
		out(jstype.BigInt)
	case il.OpLoadFloat:
		out(jstype.Float)
	case il.OpLoadString, il.OpCreateTemplateString:
		out(jstype.String)
	case il.OpLoadBoolean:
		out(jstype.Boolean)
	case il.OpLoadUndefined:
		out(jstype.Undefined)
	case il.OpLoadNull:
		out(jstype.Null)
	case il.OpLoadRegExp:
		out(jstype.RegExp)
	case il.OpLoadThis:
		out(jstype.PlainObject)
	case il.OpLoadArguments:
		out(jstype.Object("Arguments", []string{"length"}, nil))
	case il.OpLoadBuiltin:
		out(jstype.Anything)

	case il.OpCreateObject:
		names := op.Params.(il.CreateObjectParams).PropertyNames
		out(jstype.Object("", names, nil))
	case il.OpCreateArray, il.OpCreateArrayWithSpread, il.OpCreateIntArray, il.OpCreateFloatArray:
		out(arrayType)

	case il.OpGetProperty, il.OpGetElement, il.OpGetComputedProperty:
		out(jstype.Anything)
	case il.OpDeleteProperty, il.OpDeleteElement, il.OpDeleteComputedProperty,
		il.OpCompare, il.OpTestInstanceOf, il.OpTestIn:
		out(jstype.Boolean)
	case il.OpTypeOf:
		out(jstype.String)

	case il.OpUnaryOp:
		if op.Params.(il.UnaryOpParams).Op == il.LogicalNot {
			out(jstype.Boolean)
		} else {
			out(jstype.Number.Union(jstype.BigInt))
		}
	case il.OpBinaryOp:
		out(binaryOpResult(op.Params.(il.BinaryOpParams).Op, t.Type(instr.Input(0)), t.Type(instr.Input(1))))
	case il.OpUpdate:
		in := instr.Input(0)
		t.setType(in, binaryOpResult(op.Params.(il.BinaryOpParams).Op, t.Type(in), t.Type(instr.Input(1))))
	case il.OpDup:
		out(t.Type(instr.Input(0)))
	case il.OpReassign:
		t.setType(instr.Input(0), t.Type(instr.Input(1)))

	case il.OpCallFunction, il.OpCallFunctionWithSpread, il.OpConstruct, il.OpConstructWithSpread:
		out(callResult(t.Type(instr.Input(0))))
	case il.OpCallMethod, il.OpCallMethodWithSpread, il.OpCallComputedMethod:
		out(jstype.Anything)

	case il.OpBeginPlainFunction, il.OpBeginGeneratorFunction, il.OpBeginAsyncFunction,
		il.OpBeginAsyncGeneratorFunction:
		out(jstype.FunctionAndConstructor(nil))
		innerDefaults(jstype.Anything)
	case il.OpBeginArrowFunction, il.OpBeginAsyncArrowFunction:
		out(jstype.Function(nil))
		innerDefaults(jstype.Anything)
	case il.OpBeginClassDefinition:
		out(jstype.Constructor(nil))
	case il.OpBeginClassConstructor, il.OpBeginClassMethod:
		t.setType(instr.InnerOutput(0), jstype.PlainObject)
		for _, v := range instr.InnerOutputs()[1:] {
			t.setType(v, jstype.Anything)
		}
	case il.OpBeginCodeString:
		out(jstype.String)

	case il.OpAwait, il.OpYield:
		out(jstype.Anything)

	case il.OpBeginForLoop, il.OpBeginRepeatLoop:
		innerDefaults(jstype.Integer)
	case il.OpBeginForInLoop:
		innerDefaults(jstype.String)
	case il.OpBeginForOfLoop, il.OpBeginCatch:
		innerDefaults(jstype.Anything)

	default:
		// Everything else defines nothing or nothing precise is known.
		for _, v := range instr.AllOutputs() {
			t.setType(v, jstype.Anything)
		}
	}
}

// binaryOpResult approximates the result type of a binary operation.
func binaryOpResult(op il.BinaryOperator, lhs, rhs jstype.Type) jstype.Type {
	switch op {
	case il.Add:
		if lhs.Is(jstype.String) || rhs.Is(jstype.String) {
			return jstype.String
		}
		if lhs.Is(jstype.BigInt) && rhs.Is(jstype.BigInt) {
			return jstype.BigInt
		}
		if lhs.Is(jstype.Number) && rhs.Is(jstype.Number) {
			return jstype.Number
		}
		return jstype.Number.Union(jstype.String).Union(jstype.BigInt)
	case il.Sub, il.Mul, il.Div, il.Mod, il.Exp:
		if lhs.Is(jstype.BigInt) && rhs.Is(jstype.BigInt) {
			return jstype.BigInt
		}
		return jstype.Number.Union(jstype.BigInt)
	case il.BitAnd, il.BitOr, il.BitXor, il.LShift, il.RShift, il.UnsignedRShift:
		return jstype.Integer.Union(jstype.BigInt)
	case il.LogicAnd, il.LogicOr, il.NullCoalesce:
		return lhs.Union(rhs)
	default:
		return jstype.Anything
	}
}

// callResult derives a call's result type from the callee's signature when
// one is known.
func callResult(callee jstype.Type) jstype.Type {
	if sig := callee.Signature(); sig != nil {
		return sig.OutputType
	}
	return jstype.Anything
}
