package builder

import (
	"math"
	"strings"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// Typed emit helpers. These are the vocabulary used by code generators and
// mutators; each creates one instruction and returns the defined variables.
// They panic with an invariant violation on misuse, which the mutation
// boundary converts back into a failed mutation.

// LoadInt emits an integer literal.
func (b *ProgramBuilder) LoadInt(value int64) il.Variable {
	return b.Emit(il.NewLoadInteger(value)).Output()
}

// LoadBigInt emits a bigint literal from decimal digits.
func (b *ProgramBuilder) LoadBigInt(digits string) il.Variable {
	return b.Emit(il.NewLoadBigInt(digits)).Output()
}

// LoadFloat emits a float literal.
func (b *ProgramBuilder) LoadFloat(value float64) il.Variable {
	return b.Emit(il.NewLoadFloat(value)).Output()
}

// LoadString emits a string literal.
func (b *ProgramBuilder) LoadString(value string) il.Variable {
	return b.Emit(il.NewLoadString(value)).Output()
}

// LoadBool emits a boolean literal.
func (b *ProgramBuilder) LoadBool(value bool) il.Variable {
	return b.Emit(il.NewLoadBoolean(value)).Output()
}

// LoadUndefined emits the undefined value.
func (b *ProgramBuilder) LoadUndefined() il.Variable {
	return b.Emit(il.New(il.OpLoadUndefined)).Output()
}

// LoadNull emits the null value.
func (b *ProgramBuilder) LoadNull() il.Variable {
	return b.Emit(il.New(il.OpLoadNull)).Output()
}

// LoadRegExp emits a regular expression literal.
func (b *ProgramBuilder) LoadRegExp(pattern string, flags il.RegExpFlags) il.Variable {
	return b.Emit(il.NewLoadRegExp(pattern, flags)).Output()
}

// LoadBuiltin emits a reference to a named builtin.
func (b *ProgramBuilder) LoadBuiltin(name string) il.Variable {
	return b.Emit(il.NewLoadBuiltin(name)).Output()
}

// CreateObject emits an object literal with the given properties.
func (b *ProgramBuilder) CreateObject(names []string, values []il.Variable) il.Variable {
	return b.Emit(il.NewCreateObject(names), values...).Output()
}

// CreateArray emits an array literal.
func (b *ProgramBuilder) CreateArray(elements []il.Variable) il.Variable {
	return b.Emit(il.NewCreateArray(len(elements)), elements...).Output()
}

// GetProperty emits a property load.
func (b *ProgramBuilder) GetProperty(obj il.Variable, name string) il.Variable {
	return b.Emit(il.NewGetProperty(name, false), obj).Output()
}

// SetProperty emits a property store.
func (b *ProgramBuilder) SetProperty(obj il.Variable, name string, value il.Variable) {
	b.Emit(il.NewSetProperty(name), obj, value)
}

// GetElement emits an element load.
func (b *ProgramBuilder) GetElement(obj il.Variable, index int64) il.Variable {
	return b.Emit(il.NewGetElement(index, false), obj).Output()
}

// SetElement emits an element store.
func (b *ProgramBuilder) SetElement(obj il.Variable, index int64, value il.Variable) {
	b.Emit(il.NewSetElement(index), obj, value)
}

// GetComputedProperty emits a computed property load.
func (b *ProgramBuilder) GetComputedProperty(obj, name il.Variable) il.Variable {
	return b.Emit(il.New(il.OpGetComputedProperty), obj, name).Output()
}

// UnaryOp emits a unary operation.
func (b *ProgramBuilder) UnaryOp(op il.UnaryOperator, val il.Variable) il.Variable {
	return b.Emit(il.NewUnaryOp(op), val).Output()
}

// BinaryOp emits a binary operation.
func (b *ProgramBuilder) BinaryOp(op il.BinaryOperator, lhs, rhs il.Variable) il.Variable {
	return b.Emit(il.NewBinaryOp(op), lhs, rhs).Output()
}

// Compare emits a comparison.
func (b *ProgramBuilder) Compare(op il.Comparator, lhs, rhs il.Variable) il.Variable {
	return b.Emit(il.NewCompare(op), lhs, rhs).Output()
}

// TypeOf emits a typeof expression.
func (b *ProgramBuilder) TypeOf(val il.Variable) il.Variable {
	return b.Emit(il.New(il.OpTypeOf), val).Output()
}

// Dup emits a copy of a value into a fresh variable.
func (b *ProgramBuilder) Dup(val il.Variable) il.Variable {
	return b.Emit(il.New(il.OpDup), val).Output()
}

// Reassign emits an assignment of value to target.
func (b *ProgramBuilder) Reassign(target, value il.Variable) {
	b.Emit(il.New(il.OpReassign), target, value)
}

// CallFunction emits a function call.
func (b *ProgramBuilder) CallFunction(fn il.Variable, args ...il.Variable) il.Variable {
	inputs := append([]il.Variable{fn}, args...)
	return b.Emit(il.NewCallFunction(len(args), false), inputs...).Output()
}

// CallMethod emits a method call.
func (b *ProgramBuilder) CallMethod(obj il.Variable, name string, args ...il.Variable) il.Variable {
	inputs := append([]il.Variable{obj}, args...)
	return b.Emit(il.NewCallMethod(name, len(args), false), inputs...).Output()
}

// Construct emits a constructor call.
func (b *ProgramBuilder) Construct(ctor il.Variable, args ...il.Variable) il.Variable {
	inputs := append([]il.Variable{ctor}, args...)
	return b.Emit(il.NewConstruct(len(args), false), inputs...).Output()
}

// Return emits a return of the given value.
func (b *ProgramBuilder) Return(val il.Variable) {
	b.Emit(il.New(il.OpReturn), val)
}

// Await emits an await expression.
func (b *ProgramBuilder) Await(val il.Variable) il.Variable {
	return b.Emit(il.New(il.OpAwait), val).Output()
}

// Yield emits a yield expression.
func (b *ProgramBuilder) Yield(val il.Variable) il.Variable {
	return b.Emit(il.New(il.OpYield), val).Output()
}

// ThrowException emits a throw.
func (b *ProgramBuilder) ThrowException(val il.Variable) {
	b.Emit(il.New(il.OpThrowException), val)
}

// BeginIf opens an if block on the given condition.
func (b *ProgramBuilder) BeginIf(cond il.Variable, inverted bool) {
	b.Emit(il.NewBeginIf(inverted), cond)
}

// BeginElse continues an if group with its else branch.
func (b *ProgramBuilder) BeginElse() { b.Emit(il.New(il.OpBeginElse)) }

// EndIf closes an if group.
func (b *ProgramBuilder) EndIf() { b.Emit(il.New(il.OpEndIf)) }

// BeginWhileLoop opens a while loop comparing lhs and rhs.
func (b *ProgramBuilder) BeginWhileLoop(lhs, rhs il.Variable, cmp il.Comparator) {
	b.Emit(il.NewBeginWhileLoop(cmp), lhs, rhs)
}

// EndWhileLoop closes a while loop.
func (b *ProgramBuilder) EndWhileLoop() { b.Emit(il.New(il.OpEndWhileLoop)) }

// BeginForLoop opens a counted loop, returning the loop variable.
func (b *ProgramBuilder) BeginForLoop(start, end, step il.Variable, cmp il.Comparator, op il.BinaryOperator) il.Variable {
	return b.Emit(il.NewBeginForLoop(cmp, op), start, end, step).InnerOutput(0)
}

// EndForLoop closes a counted loop.
func (b *ProgramBuilder) EndForLoop() { b.Emit(il.New(il.OpEndForLoop)) }

// BeginForOfLoop opens an iteration loop over obj, returning the element
// variable.
func (b *ProgramBuilder) BeginForOfLoop(obj il.Variable) il.Variable {
	return b.Emit(il.New(il.OpBeginForOfLoop), obj).InnerOutput(0)
}

// EndForOfLoop closes an iteration loop.
func (b *ProgramBuilder) EndForOfLoop() { b.Emit(il.New(il.OpEndForOfLoop)) }

// BeginRepeatLoop opens a fixed-count loop, returning the counter variable.
func (b *ProgramBuilder) BeginRepeatLoop(iterations int64) il.Variable {
	return b.Emit(il.NewBeginRepeatLoop(iterations)).InnerOutput(0)
}

// EndRepeatLoop closes a fixed-count loop.
func (b *ProgramBuilder) EndRepeatLoop() { b.Emit(il.New(il.OpEndRepeatLoop)) }

// BeginTry opens a try block.
func (b *ProgramBuilder) BeginTry() { b.Emit(il.New(il.OpBeginTry)) }

// BeginCatch continues a try group with its catch clause, returning the
// exception variable.
func (b *ProgramBuilder) BeginCatch() il.Variable {
	return b.Emit(il.New(il.OpBeginCatch)).InnerOutput(0)
}

// BeginFinally continues a try group with its finally clause.
func (b *ProgramBuilder) BeginFinally() { b.Emit(il.New(il.OpBeginFinally)) }

// EndTryCatch closes a try group.
func (b *ProgramBuilder) EndTryCatch() { b.Emit(il.New(il.OpEndTryCatchFinally)) }

// BeginPlainFunction opens a plain function definition, returning the
// function value and its parameters.
func (b *ProgramBuilder) BeginPlainFunction(params il.FunctionParams) (il.Variable, []il.Variable) {
	instr := b.Emit(il.NewBeginPlainFunction(params))
	return instr.Output(), instr.InnerOutputs()
}

// EndPlainFunction closes a plain function definition.
func (b *ProgramBuilder) EndPlainFunction() { b.Emit(il.New(il.OpEndPlainFunction)) }

// interestingInts are integer literal values worth emitting more often than
// uniform sampling would.
var interestingInts = []int64{
	0, 1, -1, 2, 3, 4, 7, 8, 15, 16, 31, 32, 63, 64, 127, 128, 255, 256,
	511, 512, 1023, 1024, 4095, 4096, 65535, 65536,
	1<<30 - 1, 1 << 30, 1<<31 - 1, 1 << 31, 1<<32 - 1, 1 << 32,
	-(1 << 31), 9007199254740991, -9007199254740991,
}

// interestingFloats are float literal values worth emitting more often.
var interestingFloats = []float64{
	0, -0.0, 0.5, -0.5, 1.5, 13.37, -13.37,
	math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(1), math.Inf(-1), math.NaN(),
	2.2250738585072014e-308, 1e15, -1e15,
}

// interestingStrings are string literal values worth emitting more often.
var interestingStrings = []string{
	"", "a", "main", "length", "constructor", "__proto__", "valueOf", "toString",
	"0", "1", "NaN", "undefined", "null", "object", "function", "callee",
}

// RandomInt samples an integer literal value, biased towards interesting
// boundary values.
func (b *ProgramBuilder) RandomInt() int64 {
	if probability(b.rng, 0.5) {
		return interestingInts[b.rng.Intn(len(interestingInts))]
	}
	return b.rng.Int63n(0x100000000) - 0x80000000
}

// RandomFloat samples a float literal value.
func (b *ProgramBuilder) RandomFloat() float64 {
	if probability(b.rng, 0.5) {
		return interestingFloats[b.rng.Intn(len(interestingFloats))]
	}
	return b.rng.NormFloat64() * 1e6
}

// RandomString samples a string literal value.
func (b *ProgramBuilder) RandomString() string {
	if probability(b.rng, 0.75) {
		return interestingStrings[b.rng.Intn(len(interestingStrings))]
	}
	n := 1 + b.rng.Intn(8)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + b.rng.Intn(26)))
	}
	return sb.String()
}

// RandomPropertyName samples a plausible property name.
func (b *ProgramBuilder) RandomPropertyName() string {
	names := []string{"a", "b", "c", "d", "e", "length", "name", "value", "x", "y", "toString", "valueOf", "constructor", "__proto__"}
	return names[b.rng.Intn(len(names))]
}

// RandomMethodName samples a plausible method name.
func (b *ProgramBuilder) RandomMethodName() string {
	names := []string{"toString", "valueOf", "hasOwnProperty", "push", "pop", "slice", "charCodeAt", "apply", "call", "bind"}
	return names[b.rng.Intn(len(names))]
}

// RandomBuiltinName samples a builtin global name.
func (b *ProgramBuilder) RandomBuiltinName() string {
	names := []string{"Object", "Array", "Function", "String", "Number", "Boolean", "Symbol", "Math", "JSON", "Reflect", "Proxy", "Map", "Set", "WeakMap", "WeakSet", "Promise", "ArrayBuffer", "Uint8Array", "Int32Array", "Float64Array", "parseInt", "parseFloat", "isNaN", "eval"}
	return names[b.rng.Intn(len(names))]
}

// LoadRandomValue emits one random value literal and returns it. Used to
// guarantee a minimum population of visible variables before generation.
func (b *ProgramBuilder) LoadRandomValue() il.Variable {
	switch b.rng.Intn(6) {
	case 0:
		return b.LoadInt(b.RandomInt())
	case 1:
		return b.LoadFloat(b.RandomFloat())
	case 2:
		return b.LoadString(b.RandomString())
	case 3:
		return b.LoadBool(probability(b.rng, 0.5))
	case 4:
		return b.LoadBuiltin(b.RandomBuiltinName())
	default:
		return b.LoadNull()
	}
}
