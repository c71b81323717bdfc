package mutator

import (
	"encoding/json"
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// ActionOperation names one JS-level operation the runtime can select.
type ActionOperation string

// The action vocabulary shared with the runtime support code.
const (
	ActionCallFunction   ActionOperation = "CALL_FUNCTION"
	ActionConstruct      ActionOperation = "CONSTRUCT"
	ActionCallMethod     ActionOperation = "CALL_METHOD"
	ActionGetProperty    ActionOperation = "GET_PROPERTY"
	ActionSetProperty    ActionOperation = "SET_PROPERTY"
	ActionDeleteProperty ActionOperation = "DELETE_PROPERTY"
	ActionGetElement     ActionOperation = "GET_ELEMENT"
	ActionSetElement     ActionOperation = "SET_ELEMENT"
	ActionUnaryOp        ActionOperation = "UNARY_OP"
	ActionBinaryOp       ActionOperation = "BINARY_OP"
	ActionCompare        ActionOperation = "COMPARE"
	ActionTestInstanceOf ActionOperation = "TEST_INSTANCE_OF"
	ActionTestIn         ActionOperation = "TEST_IN"
	ActionTypeOf         ActionOperation = "TYPE_OF"
	ActionRegisterSymbol ActionOperation = "REGISTER_SYMBOL"
)

// SpecialExploredValue is the special input name resolving to the value an
// instrumentation point operates on.
const SpecialExploredValue = "exploredValue"

// ActionInput is one input of an action: a tagged union encoded as a JSON
// object with exactly one field set.
type ActionInput struct {
	ArgumentIndex *int     `json:"argumentIndex,omitempty"`
	PropertyName  *string  `json:"propertyName,omitempty"`
	ElementIndex  *int64   `json:"elementIndex,omitempty"`
	MethodName    *string  `json:"methodName,omitempty"`
	Int           *int64   `json:"int,omitempty"`
	Float         *float64 `json:"float,omitempty"`
	BigInt        *string  `json:"bigint,omitempty"`
	String        *string  `json:"string,omitempty"`
	SpecialName   *string  `json:"specialName,omitempty"`
}

// Action is a JSON-serializable description of one concrete JS-level
// operation, exchanged between instrumented runtime code and the mutator.
type Action struct {
	ID        string          `json:"id"`
	Operation ActionOperation `json:"operation"`
	Inputs    []ActionInput   `json:"inputs"`
	IsGuarded bool            `json:"isGuarded,omitempty"`
}

// ParseAction decodes one action from its JSON encoding.
func ParseAction(data []byte) (*Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}
	if a.Operation == "" {
		return nil, fmt.Errorf("action %q carries no operation", a.ID)
	}
	return &a, nil
}

// Encode returns the action's JSON encoding.
func (a *Action) Encode() []byte {
	data, err := json.Marshal(a)
	if err != nil {
		// All action fields are plain data; marshaling cannot fail.
		panic(err)
	}
	return data
}

// ActionContext resolves an action's symbolic inputs to builder variables.
type ActionContext struct {
	// Subject is the value the instrumentation point operates on.
	Subject il.Variable

	// Arguments are the candidate argument variables captured at the
	// instrumentation point, indexed by ArgumentIndex inputs.
	Arguments []il.Variable

	// Specials maps special input names to variables. SpecialExploredValue
	// defaults to Subject if absent.
	Specials map[string]il.Variable
}

// resolveVariable turns a value-like action input into a builder variable,
// emitting literal loads as needed.
func (ctx *ActionContext) resolveVariable(in ActionInput, b *builder.ProgramBuilder) (il.Variable, error) {
	switch {
	case in.ArgumentIndex != nil:
		i := *in.ArgumentIndex
		if i < 0 || i >= len(ctx.Arguments) {
			return 0, fmt.Errorf("argument index %d out of range", i)
		}
		return ctx.Arguments[i], nil
	case in.Int != nil:
		return b.LoadInt(*in.Int), nil
	case in.Float != nil:
		return b.LoadFloat(*in.Float), nil
	case in.BigInt != nil:
		return b.LoadBigInt(*in.BigInt), nil
	case in.String != nil:
		return b.LoadString(*in.String), nil
	case in.SpecialName != nil:
		if v, ok := ctx.Specials[*in.SpecialName]; ok {
			return v, nil
		}
		if *in.SpecialName == SpecialExploredValue {
			return ctx.Subject, nil
		}
		return 0, fmt.Errorf("unknown special input %q", *in.SpecialName)
	default:
		return 0, fmt.Errorf("action input is not value-like")
	}
}

// actionHandler translates one action operation into instructions. result
// reports the variable holding the action's value, if it produces one.
type actionHandler struct {
	// minInputs is the fixed arity floor; variadic operations accept more.
	minInputs int

	translate func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error)
}

// actionHandlers dispatches action operations to their translations. Shape
// validation lives here, next to the translation.
var actionHandlers = map[ActionOperation]*actionHandler{
	ActionCallFunction: {translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		args, err := resolveAll(a.Inputs, ctx, b)
		if err != nil {
			return 0, false, err
		}
		op := il.NewCallFunction(len(args), a.IsGuarded)
		v := b.Emit(op, append([]il.Variable{ctx.Subject}, args...)...).Output()
		return v, true, nil
	}},
	ActionConstruct: {translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		args, err := resolveAll(a.Inputs, ctx, b)
		if err != nil {
			return 0, false, err
		}
		op := il.NewConstruct(len(args), a.IsGuarded)
		v := b.Emit(op, append([]il.Variable{ctx.Subject}, args...)...).Output()
		return v, true, nil
	}},
	ActionCallMethod: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].MethodName == nil {
			return 0, false, fmt.Errorf("%s requires a method name first", a.Operation)
		}
		args, err := resolveAll(a.Inputs[1:], ctx, b)
		if err != nil {
			return 0, false, err
		}
		op := il.NewCallMethod(*a.Inputs[0].MethodName, len(args), a.IsGuarded)
		v := b.Emit(op, append([]il.Variable{ctx.Subject}, args...)...).Output()
		return v, true, nil
	}},
	ActionGetProperty: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].PropertyName == nil {
			return 0, false, fmt.Errorf("%s requires a property name", a.Operation)
		}
		v := b.Emit(il.NewGetProperty(*a.Inputs[0].PropertyName, a.IsGuarded), ctx.Subject).Output()
		return v, true, nil
	}},
	ActionSetProperty: {minInputs: 2, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].PropertyName == nil {
			return 0, false, fmt.Errorf("%s requires a property name", a.Operation)
		}
		value, err := ctx.resolveVariable(a.Inputs[1], b)
		if err != nil {
			return 0, false, err
		}
		emitPossiblyGuarded(a, b, func() (il.Variable, bool) {
			b.Emit(il.NewSetProperty(*a.Inputs[0].PropertyName), ctx.Subject, value)
			return 0, false
		})
		return 0, false, nil
	}},
	ActionDeleteProperty: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].PropertyName == nil {
			return 0, false, fmt.Errorf("%s requires a property name", a.Operation)
		}
		v := b.Emit(il.NewDeleteProperty(*a.Inputs[0].PropertyName, a.IsGuarded), ctx.Subject).Output()
		return v, true, nil
	}},
	ActionGetElement: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].ElementIndex == nil {
			return 0, false, fmt.Errorf("%s requires an element index", a.Operation)
		}
		v := b.Emit(il.NewGetElement(*a.Inputs[0].ElementIndex, a.IsGuarded), ctx.Subject).Output()
		return v, true, nil
	}},
	ActionSetElement: {minInputs: 2, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].ElementIndex == nil {
			return 0, false, fmt.Errorf("%s requires an element index", a.Operation)
		}
		value, err := ctx.resolveVariable(a.Inputs[1], b)
		if err != nil {
			return 0, false, err
		}
		emitPossiblyGuarded(a, b, func() (il.Variable, bool) {
			b.Emit(il.NewSetElement(*a.Inputs[0].ElementIndex), ctx.Subject, value)
			return 0, false
		})
		return 0, false, nil
	}},
	ActionUnaryOp: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		op, err := unaryFromToken(a.Inputs[0])
		if err != nil {
			return 0, false, err
		}
		v := b.UnaryOp(op, ctx.Subject)
		return v, true, nil
	}},
	ActionBinaryOp: {minInputs: 2, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		op, err := binaryFromToken(a.Inputs[0])
		if err != nil {
			return 0, false, err
		}
		rhs, err := ctx.resolveVariable(a.Inputs[1], b)
		if err != nil {
			return 0, false, err
		}
		v := b.BinaryOp(op, ctx.Subject, rhs)
		return v, true, nil
	}},
	ActionCompare: {minInputs: 2, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		op, err := comparatorFromToken(a.Inputs[0])
		if err != nil {
			return 0, false, err
		}
		rhs, err := ctx.resolveVariable(a.Inputs[1], b)
		if err != nil {
			return 0, false, err
		}
		v := b.Compare(op, ctx.Subject, rhs)
		return v, true, nil
	}},
	ActionTestInstanceOf: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		rhs, err := ctx.resolveVariable(a.Inputs[0], b)
		if err != nil {
			return 0, false, err
		}
		v := b.Emit(il.New(il.OpTestInstanceOf).WithGuard(a.IsGuarded), ctx.Subject, rhs).Output()
		return v, true, nil
	}},
	ActionTestIn: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		rhs, err := ctx.resolveVariable(a.Inputs[0], b)
		if err != nil {
			return 0, false, err
		}
		v := b.Emit(il.New(il.OpTestIn), ctx.Subject, rhs).Output()
		return v, true, nil
	}},
	ActionTypeOf: {translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		return b.TypeOf(ctx.Subject), true, nil
	}},
	ActionRegisterSymbol: {minInputs: 1, translate: func(a *Action, ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
		if a.Inputs[0].String == nil {
			return 0, false, fmt.Errorf("%s requires a symbol description", a.Operation)
		}
		symbol := b.LoadBuiltin("Symbol")
		desc := b.LoadString(*a.Inputs[0].String)
		v := b.CallMethod(symbol, "for", desc)
		return v, true, nil
	}},
}

func resolveAll(inputs []ActionInput, ctx *ActionContext, b *builder.ProgramBuilder) ([]il.Variable, error) {
	vars := make([]il.Variable, 0, len(inputs))
	for _, in := range inputs {
		v, err := ctx.resolveVariable(in, b)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// emitPossiblyGuarded wraps non-guardable operations in try/catch when the
// action is guarded. A produced value survives the block through a
// pre-declared variable.
func emitPossiblyGuarded(a *Action, b *builder.ProgramBuilder, emit func() (il.Variable, bool)) (il.Variable, bool) {
	if !a.IsGuarded {
		return emit()
	}
	result := b.LoadUndefined()
	b.BeginTry()
	if v, ok := emit(); ok {
		b.Reassign(result, v)
	}
	b.BeginCatch()
	b.EndTryCatch()
	return result, true
}

func unaryFromToken(in ActionInput) (il.UnaryOperator, error) {
	if in.String == nil {
		return 0, fmt.Errorf("unary operation requires an operator token")
	}
	for _, op := range il.AllUnaryOperators {
		if op.Token() == *in.String {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown unary operator %q", *in.String)
}

func binaryFromToken(in ActionInput) (il.BinaryOperator, error) {
	if in.String == nil {
		return 0, fmt.Errorf("binary operation requires an operator token")
	}
	for _, op := range il.AllBinaryOperators {
		if op.Token() == *in.String {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown binary operator %q", *in.String)
}

func comparatorFromToken(in ActionInput) (il.Comparator, error) {
	if in.String == nil {
		return 0, fmt.Errorf("comparison requires an operator token")
	}
	for _, op := range il.AllComparators {
		if op.Token() == *in.String {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown comparator %q", *in.String)
}

// Translate materializes the action as instructions through the builder. It
// returns the variable holding the action's result, if the action produces
// one.
func (a *Action) Translate(ctx *ActionContext, b *builder.ProgramBuilder) (il.Variable, bool, error) {
	handler, ok := actionHandlers[a.Operation]
	if !ok {
		return 0, false, fmt.Errorf("unknown action operation %q", a.Operation)
	}
	if len(a.Inputs) < handler.minInputs {
		return 0, false, fmt.Errorf("%s requires %d inputs, got %d", a.Operation, handler.minInputs, len(a.Inputs))
	}
	return handler.translate(a, ctx, b)
}
