package il

import (
	"fmt"
	"strings"
)

// UnaryOperator identifies a JavaScript unary operator.
type UnaryOperator uint8

// The unary operators.
const (
	UnaryPlus UnaryOperator = iota
	UnaryMinus
	LogicalNot
	BitwiseNot
	PreIncrement
	PreDecrement
	PostIncrement
	PostDecrement
)

// AllUnaryOperators lists every unary operator, for uniform sampling.
var AllUnaryOperators = []UnaryOperator{
	UnaryPlus, UnaryMinus, LogicalNot, BitwiseNot,
	PreIncrement, PreDecrement, PostIncrement, PostDecrement,
}

var unaryTokens = [...]string{"+", "-", "!", "~", "++", "--", "++", "--"}

// Token returns the operator's source token.
func (op UnaryOperator) Token() string { return unaryTokens[op] }

// IsPostfix reports whether the operator is written after its operand.
func (op UnaryOperator) IsPostfix() bool {
	return op == PostIncrement || op == PostDecrement
}

// BinaryOperator identifies a JavaScript binary operator.
type BinaryOperator uint8

// The binary operators.
const (
	Add BinaryOperator = iota
	Sub
	Mul
	Div
	Mod
	Exp
	BitAnd
	BitOr
	BitXor
	LShift
	RShift
	UnsignedRShift
	LogicAnd
	LogicOr
	NullCoalesce
)

// AllBinaryOperators lists every binary operator, for uniform sampling.
var AllBinaryOperators = []BinaryOperator{
	Add, Sub, Mul, Div, Mod, Exp,
	BitAnd, BitOr, BitXor, LShift, RShift, UnsignedRShift,
	LogicAnd, LogicOr, NullCoalesce,
}

var binaryTokens = [...]string{
	"+", "-", "*", "/", "%", "**",
	"&", "|", "^", "<<", ">>", ">>>",
	"&&", "||", "??",
}

// Token returns the operator's source token.
func (op BinaryOperator) Token() string { return binaryTokens[op] }

// Comparator identifies a JavaScript comparison operator.
type Comparator uint8

// The comparison operators.
const (
	Equal Comparator = iota
	StrictEqual
	NotEqual
	StrictNotEqual
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
)

// AllComparators lists every comparator, for uniform sampling.
var AllComparators = []Comparator{
	Equal, StrictEqual, NotEqual, StrictNotEqual,
	LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual,
}

var comparatorTokens = [...]string{"==", "===", "!=", "!==", "<", "<=", ">", ">="}

// Token returns the comparator's source token.
func (op Comparator) Token() string { return comparatorTokens[op] }

// RegExpFlags is a bitset of regular expression flags.
type RegExpFlags uint8

// The regular expression flags.
const (
	RegExpGlobal RegExpFlags = 1 << iota
	RegExpIgnoreCase
	RegExpMultiline
	RegExpDotAll
	RegExpUnicode
	RegExpSticky
	RegExpHasIndices
)

var regExpFlagChars = []struct {
	flag RegExpFlags
	c    byte
}{
	{RegExpGlobal, 'g'}, {RegExpIgnoreCase, 'i'}, {RegExpMultiline, 'm'},
	{RegExpDotAll, 's'}, {RegExpUnicode, 'u'}, {RegExpSticky, 'y'}, {RegExpHasIndices, 'd'},
}

// String returns the flag characters as they appear after a regexp literal.
func (f RegExpFlags) String() string {
	var sb strings.Builder
	for _, fc := range regExpFlagChars {
		if f&fc.flag != 0 {
			sb.WriteByte(fc.c)
		}
	}
	return sb.String()
}

// RandomRegExpFlags samples a flag combination via the given coin-flip source.
func RandomRegExpFlags(coin func() bool) RegExpFlags {
	var f RegExpFlags
	for _, fc := range regExpFlagChars {
		// Unicode and sticky flags interact badly with arbitrary patterns, so
		// they are sampled like the rest but remain individually toggleable.
		if coin() {
			f |= fc.flag
		}
	}
	return f
}

// Parameters is implemented by the per-opcode parameter records carried by an
// Operation. Opcodes without parameters carry nil.
type Parameters interface {
	parameters()
}

// LoadIntegerParams carries the value of a LoadInteger operation.
type LoadIntegerParams struct{ Value int64 }

// LoadBigIntParams carries the decimal digits of a LoadBigInt operation.
type LoadBigIntParams struct{ Value string }

// LoadFloatParams carries the value of a LoadFloat operation.
type LoadFloatParams struct{ Value float64 }

// LoadStringParams carries the value of a LoadString operation.
type LoadStringParams struct{ Value string }

// LoadBooleanParams carries the value of a LoadBoolean operation.
type LoadBooleanParams struct{ Value bool }

// LoadRegExpParams carries the pattern and flags of a LoadRegExp operation.
type LoadRegExpParams struct {
	Pattern string
	Flags   RegExpFlags
}

// LoadBuiltinParams names the builtin loaded by a LoadBuiltin operation.
type LoadBuiltinParams struct{ Name string }

// TemplateStringParams carries the literal parts of a template string; the
// instruction's inputs are interpolated between consecutive parts.
type TemplateStringParams struct{ Parts []string }

// CreateObjectParams carries the property names of a CreateObject operation,
// one per input.
type CreateObjectParams struct{ PropertyNames []string }

// SpreadParams carries the per-argument spread bits of spreading calls and
// array construction.
type SpreadParams struct{ Spreads []bool }

// IntArrayParams carries the elements of a CreateIntArray operation.
type IntArrayParams struct{ Values []int64 }

// FloatArrayParams carries the elements of a CreateFloatArray operation.
type FloatArrayParams struct{ Values []float64 }

// PropertyParams names the property accessed by property operations.
type PropertyParams struct{ Name string }

// UpdatePropertyParams carries the property name and operator of an
// UpdateProperty operation.
type UpdatePropertyParams struct {
	Name string
	Op   BinaryOperator
}

// ElementParams carries the index of element access operations.
type ElementParams struct{ Index int64 }

// UpdateElementParams carries the index and operator of an UpdateElement
// operation.
type UpdateElementParams struct {
	Index int64
	Op    BinaryOperator
}

// UnaryOpParams carries the operator of a UnaryOp operation.
type UnaryOpParams struct{ Op UnaryOperator }

// BinaryOpParams carries the operator of a BinaryOp or Update operation.
type BinaryOpParams struct{ Op BinaryOperator }

// CompareParams carries the comparator of a Compare operation.
type CompareParams struct{ Op Comparator }

// MethodParams names the method of a CallMethod operation.
type MethodParams struct{ Name string }

// MethodSpreadParams carries the method name and spread bits of a
// CallMethodWithSpread operation.
type MethodSpreadParams struct {
	Name    string
	Spreads []bool
}

// FunctionParams describes the parameter list of a subroutine definition.
type FunctionParams struct {
	// NumParameters is the number of declared parameters, each becoming one
	// inner output of the definition.
	NumParameters int

	// HasRestParameter marks the last parameter as a rest parameter.
	HasRestParameter bool
}

// IfParams carries the inversion bit of a BeginIf operation.
type IfParams struct{ Inverted bool }

// LoopParams carries the comparator of while and do-while loop headers.
type LoopParams struct{ Comparator Comparator }

// ForLoopParams carries the comparator and step operator of a for-loop header.
type ForLoopParams struct {
	Comparator Comparator
	Op         BinaryOperator
}

// RepeatParams carries the iteration count of a BeginRepeatLoop operation.
type RepeatParams struct{ Iterations int64 }

// ClassParams describes a class definition header.
type ClassParams struct{ HasSuperclass bool }

// ClassConstructorParams describes a class constructor's parameter list.
type ClassConstructorParams struct{ NumParameters int }

// ClassMethodParams describes a class method.
type ClassMethodParams struct {
	Name          string
	NumParameters int
}

// ExploreParams carries the identity of an Explore instrumentation point.
type ExploreParams struct{ ID string }

// ProbeParams carries the identity of a Probe instrumentation point.
type ProbeParams struct{ ID string }

// FixupParams carries the identity and the proposed action of a Fixup
// instrumentation point. The action is stored in its JSON encoding so that the
// program model stays independent of the action vocabulary.
type FixupParams struct {
	ID     string
	Action []byte
}

func (LoadIntegerParams) parameters()      {}
func (LoadBigIntParams) parameters()       {}
func (LoadFloatParams) parameters()        {}
func (LoadStringParams) parameters()       {}
func (LoadBooleanParams) parameters()      {}
func (LoadRegExpParams) parameters()       {}
func (LoadBuiltinParams) parameters()      {}
func (TemplateStringParams) parameters()   {}
func (CreateObjectParams) parameters()     {}
func (SpreadParams) parameters()           {}
func (IntArrayParams) parameters()         {}
func (FloatArrayParams) parameters()       {}
func (PropertyParams) parameters()         {}
func (UpdatePropertyParams) parameters()   {}
func (ElementParams) parameters()          {}
func (UpdateElementParams) parameters()    {}
func (UnaryOpParams) parameters()          {}
func (BinaryOpParams) parameters()         {}
func (CompareParams) parameters()          {}
func (MethodParams) parameters()           {}
func (MethodSpreadParams) parameters()     {}
func (FunctionParams) parameters()         {}
func (IfParams) parameters()               {}
func (LoopParams) parameters()             {}
func (ForLoopParams) parameters()          {}
func (RepeatParams) parameters()           {}
func (ClassParams) parameters()            {}
func (ClassConstructorParams) parameters() {}
func (ClassMethodParams) parameters()      {}
func (ExploreParams) parameters()          {}
func (ProbeParams) parameters()            {}
func (FixupParams) parameters()            {}

// Operation is one concrete operation value: an opcode, its instance shape,
// its parameters, and the guard bit. Operations are immutable once created and
// may be shared between instructions and programs.
type Operation struct {
	// Opcode selects the static metadata record for this operation.
	Opcode Opcode

	// Guarded marks guardable operations whose exceptions are swallowed when
	// the program is materialized.
	Guarded bool

	// Params is the per-opcode parameter record, nil for parameterless opcodes.
	Params Parameters

	numInputs       int
	numOutputs      int
	numInnerOutputs int
}

// New creates an operation for an opcode without parameters and with the fixed
// shape declared in the catalog.
func New(op Opcode) *Operation {
	def := MustLookup(op)
	return &Operation{
		Opcode:          op,
		numInputs:       def.NumInputs,
		numOutputs:      def.NumOutputs,
		numInnerOutputs: def.NumInnerOutputs,
	}
}

// newOp creates an operation with parameters and the catalog shape.
func newOp(op Opcode, params Parameters) *Operation {
	o := New(op)
	o.Params = params
	return o
}

// Definition returns the opcode's static metadata.
func (o *Operation) Definition() *Definition { return MustLookup(o.Opcode) }

// NumInputs returns the instance input count.
func (o *Operation) NumInputs() int { return o.numInputs }

// NumOutputs returns the number of outer outputs.
func (o *Operation) NumOutputs() int { return o.numOutputs }

// NumInnerOutputs returns the number of inner outputs.
func (o *Operation) NumInnerOutputs() int { return o.numInnerOutputs }

// NumInouts returns the total number of variable slots of an instruction using
// this operation.
func (o *Operation) NumInouts() int { return o.numInputs + o.numOutputs + o.numInnerOutputs }

// WithGuard returns a copy of the operation with the guard bit set as given.
// Calling it on a non-guardable opcode panics.
func (o *Operation) WithGuard(guarded bool) *Operation {
	if !o.Definition().IsGuardable() {
		panic(fmt.Sprintf("%s is not guardable", o.Opcode))
	}
	dup := *o
	dup.Guarded = guarded
	return &dup
}

// WithExtraInputs returns a copy of a variadic operation accepting n more
// inputs. Calling it on a non-variadic opcode panics.
func (o *Operation) WithExtraInputs(n int) *Operation {
	if !o.Definition().IsVariadic() {
		panic(fmt.Sprintf("%s is not variadic", o.Opcode))
	}
	dup := *o
	dup.numInputs += n
	return &dup
}

// String renders the operation with a short parameter summary.
func (o *Operation) String() string {
	name := o.Opcode.String()
	if o.Guarded {
		name += " (guarded)"
	}
	switch p := o.Params.(type) {
	case LoadIntegerParams:
		return fmt.Sprintf("%s %d", name, p.Value)
	case LoadBigIntParams:
		return fmt.Sprintf("%s %sn", name, p.Value)
	case LoadFloatParams:
		return fmt.Sprintf("%s %v", name, p.Value)
	case LoadStringParams:
		return fmt.Sprintf("%s %q", name, p.Value)
	case LoadBooleanParams:
		return fmt.Sprintf("%s %v", name, p.Value)
	case LoadRegExpParams:
		return fmt.Sprintf("%s /%s/%s", name, p.Pattern, p.Flags)
	case LoadBuiltinParams:
		return fmt.Sprintf("%s '%s'", name, p.Name)
	case PropertyParams:
		return fmt.Sprintf("%s '%s'", name, p.Name)
	case UpdatePropertyParams:
		return fmt.Sprintf("%s '%s' %s", name, p.Name, p.Op.Token())
	case ElementParams:
		return fmt.Sprintf("%s [%d]", name, p.Index)
	case UpdateElementParams:
		return fmt.Sprintf("%s [%d] %s", name, p.Index, p.Op.Token())
	case UnaryOpParams:
		return fmt.Sprintf("%s '%s'", name, p.Op.Token())
	case BinaryOpParams:
		return fmt.Sprintf("%s '%s'", name, p.Op.Token())
	case CompareParams:
		return fmt.Sprintf("%s '%s'", name, p.Op.Token())
	case MethodParams:
		return fmt.Sprintf("%s '%s'", name, p.Name)
	case MethodSpreadParams:
		return fmt.Sprintf("%s '%s'", name, p.Name)
	case LoopParams:
		return fmt.Sprintf("%s '%s'", name, p.Comparator.Token())
	case ForLoopParams:
		return fmt.Sprintf("%s '%s' '%s'", name, p.Comparator.Token(), p.Op.Token())
	case RepeatParams:
		return fmt.Sprintf("%s x%d", name, p.Iterations)
	case IfParams:
		if p.Inverted {
			return name + " (inverted)"
		}
		return name
	case ClassMethodParams:
		return fmt.Sprintf("%s '%s'", name, p.Name)
	case ExploreParams:
		return fmt.Sprintf("%s '%s'", name, p.ID)
	case ProbeParams:
		return fmt.Sprintf("%s '%s'", name, p.ID)
	case FixupParams:
		return fmt.Sprintf("%s '%s'", name, p.ID)
	default:
		return name
	}
}

// Constructors for operations with parameters or instance-specific shapes.

// NewLoadInteger creates a LoadInteger operation.
func NewLoadInteger(value int64) *Operation { return newOp(OpLoadInteger, LoadIntegerParams{value}) }

// NewLoadBigInt creates a LoadBigInt operation from decimal digits.
func NewLoadBigInt(digits string) *Operation { return newOp(OpLoadBigInt, LoadBigIntParams{digits}) }

// NewLoadFloat creates a LoadFloat operation.
func NewLoadFloat(value float64) *Operation { return newOp(OpLoadFloat, LoadFloatParams{value}) }

// NewLoadString creates a LoadString operation.
func NewLoadString(value string) *Operation { return newOp(OpLoadString, LoadStringParams{value}) }

// NewLoadBoolean creates a LoadBoolean operation.
func NewLoadBoolean(value bool) *Operation { return newOp(OpLoadBoolean, LoadBooleanParams{value}) }

// NewLoadRegExp creates a LoadRegExp operation.
func NewLoadRegExp(pattern string, flags RegExpFlags) *Operation {
	return newOp(OpLoadRegExp, LoadRegExpParams{pattern, flags})
}

// NewLoadBuiltin creates a LoadBuiltin operation.
func NewLoadBuiltin(name string) *Operation { return newOp(OpLoadBuiltin, LoadBuiltinParams{name}) }

// NewCreateTemplateString creates a template string from len(parts)-1
// interpolated inputs.
func NewCreateTemplateString(parts []string) *Operation {
	if len(parts) == 0 {
		panic("a template string needs at least one part")
	}
	o := newOp(OpCreateTemplateString, TemplateStringParams{parts})
	o.numInputs = len(parts) - 1
	return o
}

// NewCreateObject creates an object with one property per input.
func NewCreateObject(propertyNames []string) *Operation {
	o := newOp(OpCreateObject, CreateObjectParams{propertyNames})
	o.numInputs = len(propertyNames)
	return o
}

// NewCreateArray creates an array from n inputs.
func NewCreateArray(n int) *Operation {
	o := New(OpCreateArray)
	o.numInputs = n
	return o
}

// NewCreateArrayWithSpread creates an array from len(spreads) inputs, each
// spread into the array when its bit is set.
func NewCreateArrayWithSpread(spreads []bool) *Operation {
	o := newOp(OpCreateArrayWithSpread, SpreadParams{spreads})
	o.numInputs = len(spreads)
	return o
}

// NewCreateIntArray creates an integer array literal.
func NewCreateIntArray(values []int64) *Operation {
	return newOp(OpCreateIntArray, IntArrayParams{values})
}

// NewCreateFloatArray creates a float array literal.
func NewCreateFloatArray(values []float64) *Operation {
	return newOp(OpCreateFloatArray, FloatArrayParams{values})
}

// NewGetProperty creates a GetProperty operation.
func NewGetProperty(name string, guarded bool) *Operation {
	o := newOp(OpGetProperty, PropertyParams{name})
	o.Guarded = guarded
	return o
}

// NewSetProperty creates a SetProperty operation.
func NewSetProperty(name string) *Operation { return newOp(OpSetProperty, PropertyParams{name}) }

// NewUpdateProperty creates an UpdateProperty operation.
func NewUpdateProperty(name string, op BinaryOperator) *Operation {
	return newOp(OpUpdateProperty, UpdatePropertyParams{name, op})
}

// NewDeleteProperty creates a DeleteProperty operation.
func NewDeleteProperty(name string, guarded bool) *Operation {
	o := newOp(OpDeleteProperty, PropertyParams{name})
	o.Guarded = guarded
	return o
}

// NewGetElement creates a GetElement operation.
func NewGetElement(index int64, guarded bool) *Operation {
	o := newOp(OpGetElement, ElementParams{index})
	o.Guarded = guarded
	return o
}

// NewSetElement creates a SetElement operation.
func NewSetElement(index int64) *Operation { return newOp(OpSetElement, ElementParams{index}) }

// NewUpdateElement creates an UpdateElement operation.
func NewUpdateElement(index int64, op BinaryOperator) *Operation {
	return newOp(OpUpdateElement, UpdateElementParams{index, op})
}

// NewDeleteElement creates a DeleteElement operation.
func NewDeleteElement(index int64, guarded bool) *Operation {
	o := newOp(OpDeleteElement, ElementParams{index})
	o.Guarded = guarded
	return o
}

// NewUnaryOp creates a UnaryOp operation.
func NewUnaryOp(op UnaryOperator) *Operation { return newOp(OpUnaryOp, UnaryOpParams{op}) }

// NewBinaryOp creates a BinaryOp operation.
func NewBinaryOp(op BinaryOperator) *Operation { return newOp(OpBinaryOp, BinaryOpParams{op}) }

// NewUpdate creates an Update operation, assigning `lhs op= rhs`.
func NewUpdate(op BinaryOperator) *Operation { return newOp(OpUpdate, BinaryOpParams{op}) }

// NewCompare creates a Compare operation.
func NewCompare(op Comparator) *Operation { return newOp(OpCompare, CompareParams{op}) }

// NewCallFunction creates a function call with numArgs arguments after the
// callee.
func NewCallFunction(numArgs int, guarded bool) *Operation {
	o := New(OpCallFunction)
	o.numInputs = 1 + numArgs
	o.Guarded = guarded
	return o
}

// NewCallFunctionWithSpread creates a spreading function call.
func NewCallFunctionWithSpread(spreads []bool, guarded bool) *Operation {
	o := newOp(OpCallFunctionWithSpread, SpreadParams{spreads})
	o.numInputs = 1 + len(spreads)
	o.Guarded = guarded
	return o
}

// NewConstruct creates a constructor call with numArgs arguments.
func NewConstruct(numArgs int, guarded bool) *Operation {
	o := New(OpConstruct)
	o.numInputs = 1 + numArgs
	o.Guarded = guarded
	return o
}

// NewConstructWithSpread creates a spreading constructor call.
func NewConstructWithSpread(spreads []bool, guarded bool) *Operation {
	o := newOp(OpConstructWithSpread, SpreadParams{spreads})
	o.numInputs = 1 + len(spreads)
	o.Guarded = guarded
	return o
}

// NewCallMethod creates a method call on the first input with numArgs
// arguments.
func NewCallMethod(name string, numArgs int, guarded bool) *Operation {
	o := newOp(OpCallMethod, MethodParams{name})
	o.numInputs = 1 + numArgs
	o.Guarded = guarded
	return o
}

// NewCallMethodWithSpread creates a spreading method call.
func NewCallMethodWithSpread(name string, spreads []bool, guarded bool) *Operation {
	o := newOp(OpCallMethodWithSpread, MethodSpreadParams{name, spreads})
	o.numInputs = 1 + len(spreads)
	o.Guarded = guarded
	return o
}

// NewCallComputedMethod calls the method named by the second input on the
// first input, with numArgs arguments.
func NewCallComputedMethod(numArgs int, guarded bool) *Operation {
	o := New(OpCallComputedMethod)
	o.numInputs = 2 + numArgs
	o.Guarded = guarded
	return o
}

func newBeginFunction(op Opcode, params FunctionParams) *Operation {
	o := newOp(op, params)
	o.numInnerOutputs = params.NumParameters
	return o
}

// NewBeginPlainFunction creates a plain function definition.
func NewBeginPlainFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginPlainFunction, params)
}

// NewBeginArrowFunction creates an arrow function definition.
func NewBeginArrowFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginArrowFunction, params)
}

// NewBeginGeneratorFunction creates a generator function definition.
func NewBeginGeneratorFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginGeneratorFunction, params)
}

// NewBeginAsyncFunction creates an async function definition.
func NewBeginAsyncFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginAsyncFunction, params)
}

// NewBeginAsyncArrowFunction creates an async arrow function definition.
func NewBeginAsyncArrowFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginAsyncArrowFunction, params)
}

// NewBeginAsyncGeneratorFunction creates an async generator function definition.
func NewBeginAsyncGeneratorFunction(params FunctionParams) *Operation {
	return newBeginFunction(OpBeginAsyncGeneratorFunction, params)
}

// NewBeginIf creates an if header. When inverted, the condition is negated.
func NewBeginIf(inverted bool) *Operation { return newOp(OpBeginIf, IfParams{inverted}) }

// NewBeginWhileLoop creates a while-loop header comparing its two inputs.
func NewBeginWhileLoop(cmp Comparator) *Operation {
	return newOp(OpBeginWhileLoop, LoopParams{cmp})
}

// NewBeginDoWhileLoop creates a do-while-loop header comparing its two inputs.
func NewBeginDoWhileLoop(cmp Comparator) *Operation {
	return newOp(OpBeginDoWhileLoop, LoopParams{cmp})
}

// NewBeginForLoop creates a for-loop header from (start, end, step) inputs,
// with the loop variable as inner output.
func NewBeginForLoop(cmp Comparator, op BinaryOperator) *Operation {
	return newOp(OpBeginForLoop, ForLoopParams{cmp, op})
}

// NewBeginRepeatLoop creates a fixed-count loop with the iteration counter as
// inner output.
func NewBeginRepeatLoop(iterations int64) *Operation {
	return newOp(OpBeginRepeatLoop, RepeatParams{iterations})
}

// NewBeginClassDefinition creates a class definition header. With a
// superclass, the single input is the superclass value.
func NewBeginClassDefinition(hasSuperclass bool) *Operation {
	o := newOp(OpBeginClassDefinition, ClassParams{hasSuperclass})
	if hasSuperclass {
		o.numInputs = 1
	}
	return o
}

// NewBeginClassConstructor creates a class constructor definition. The inner
// outputs are the bound this value followed by the parameters.
func NewBeginClassConstructor(numParameters int) *Operation {
	o := newOp(OpBeginClassConstructor, ClassConstructorParams{numParameters})
	o.numInnerOutputs = 1 + numParameters
	return o
}

// NewBeginClassMethod creates a class method definition. The inner outputs are
// the bound this value followed by the parameters.
func NewBeginClassMethod(name string, numParameters int) *Operation {
	o := newOp(OpBeginClassMethod, ClassMethodParams{name, numParameters})
	o.numInnerOutputs = 1 + numParameters
	return o
}

// NewExplore creates an Explore instrumentation point over a value and
// numArgs candidate arguments.
func NewExplore(id string, numArgs int) *Operation {
	o := newOp(OpExplore, ExploreParams{id})
	o.numInputs = 1 + numArgs
	return o
}

// NewProbe creates a Probe instrumentation point over a value.
func NewProbe(id string) *Operation { return newOp(OpProbe, ProbeParams{id}) }

// NewFixup creates a Fixup instrumentation point standing in for an original
// instruction. It carries a JSON-encoded action and reproduces the original's
// shape so dataflow through the instrumented program stays intact.
func NewFixup(id string, action []byte, numInputs, numOutputs int) *Operation {
	o := newOp(OpFixup, FixupParams{id, action})
	o.numInputs = numInputs
	o.numOutputs = numOutputs
	return o
}
