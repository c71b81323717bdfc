package mutator

import (
	"fmt"
	"math/rand"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// OperationMutator rewrites the parameters of an operation without changing
// its shape: a fresh literal value, a different operator, a new property
// name, a toggled spread or inversion bit. For a subset of variadic opcodes
// it instead extends the input list by one to three visible variables.
type OperationMutator struct{}

// NewOperationMutator creates an operation mutator wrapped into the
// instruction-walk framework.
func NewOperationMutator() Mutator {
	return NewBaseInstructionMutator(&OperationMutator{})
}

// Name identifies the mutator.
func (m *OperationMutator) Name() string { return "OperationMutator" }

// extendableVariadic lists the variadic opcodes whose input list can be
// grown without touching per-input parameters.
func extendableVariadic(op il.Opcode) bool {
	switch op {
	case il.OpCallFunction, il.OpConstruct, il.OpCallMethod, il.OpCallComputedMethod, il.OpCreateArray, il.OpExplore:
		return true
	}
	return false
}

// CanMutate accepts operations with mutable parameters and extendable
// variadic calls.
func (m *OperationMutator) CanMutate(instr il.Instruction) bool {
	return instr.Op.Definition().HasMutableParameters() || extendableVariadic(instr.Op.Opcode)
}

// BeginMutation is stateless for this mutator.
func (m *OperationMutator) BeginMutation(*il.Program, Host) {}

// MutateInstr rewrites the selected instruction's operation.
func (m *OperationMutator) MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, _ Host) error {
	inputs, err := adoptInputs(b, instr)
	if err != nil {
		return err
	}

	// Extend the input list when parameters are not mutable, and half of the
	// time when both paths are available.
	if extendableVariadic(instr.Op.Opcode) && (!instr.Op.Definition().HasMutableParameters() || probabilityHalf(b)) {
		extra := 1 + b.Rand().Intn(3)
		for i := 0; i < extra; i++ {
			v, ok := b.RandomVariable()
			if !ok {
				return fmt.Errorf("no variable to extend %s with: %w", instr.Op.Opcode, ErrMutationFailed)
			}
			inputs = append(inputs, v)
		}
		return b.AdoptTransformed(instr, instr.Op.WithExtraInputs(extra), inputs)
	}

	newOp, err := m.mutateParameters(instr.Op, b)
	if err != nil {
		return err
	}
	return b.AdoptTransformed(instr, newOp, inputs)
}

func probabilityHalf(b *builder.ProgramBuilder) bool { return b.Rand().Intn(2) == 0 }

// mutateParameters resamples the opcode's parameters, preserving shape.
func (m *OperationMutator) mutateParameters(op *il.Operation, b *builder.ProgramBuilder) (*il.Operation, error) {
	rng := b.Rand()
	newOp := *op
	switch p := op.Params.(type) {
	case il.LoadIntegerParams:
		newOp.Params = il.LoadIntegerParams{Value: b.RandomInt()}
	case il.LoadBigIntParams:
		newOp.Params = il.LoadBigIntParams{Value: fmt.Sprintf("%d", b.RandomInt())}
	case il.LoadFloatParams:
		newOp.Params = il.LoadFloatParams{Value: b.RandomFloat()}
	case il.LoadStringParams:
		newOp.Params = il.LoadStringParams{Value: b.RandomString()}
	case il.LoadBooleanParams:
		newOp.Params = il.LoadBooleanParams{Value: !p.Value}
	case il.LoadRegExpParams:
		newOp.Params = il.LoadRegExpParams{
			Pattern: p.Pattern,
			Flags:   il.RandomRegExpFlags(func() bool { return rng.Intn(4) == 0 }),
		}
	case il.LoadBuiltinParams:
		newOp.Params = il.LoadBuiltinParams{Name: b.RandomBuiltinName()}
	case il.TemplateStringParams:
		parts := append([]string(nil), p.Parts...)
		parts[rng.Intn(len(parts))] = b.RandomString()
		newOp.Params = il.TemplateStringParams{Parts: parts}
	case il.CreateObjectParams:
		if len(p.PropertyNames) == 0 {
			return nil, fmt.Errorf("empty object literal has no mutable parameter: %w", ErrMutationFailed)
		}
		names := append([]string(nil), p.PropertyNames...)
		names[rng.Intn(len(names))] = b.RandomPropertyName()
		newOp.Params = il.CreateObjectParams{PropertyNames: names}
	case il.SpreadParams:
		if len(p.Spreads) == 0 {
			return nil, fmt.Errorf("no spread bit to toggle: %w", ErrMutationFailed)
		}
		spreads := append([]bool(nil), p.Spreads...)
		i := rng.Intn(len(spreads))
		spreads[i] = !spreads[i]
		newOp.Params = il.SpreadParams{Spreads: spreads}
	case il.IntArrayParams:
		values := append([]int64(nil), p.Values...)
		if len(values) == 0 {
			values = []int64{b.RandomInt()}
		} else {
			values[rng.Intn(len(values))] = b.RandomInt()
		}
		newOp.Params = il.IntArrayParams{Values: values}
	case il.FloatArrayParams:
		values := append([]float64(nil), p.Values...)
		if len(values) == 0 {
			values = []float64{b.RandomFloat()}
		} else {
			values[rng.Intn(len(values))] = b.RandomFloat()
		}
		newOp.Params = il.FloatArrayParams{Values: values}
	case il.PropertyParams:
		newOp.Params = il.PropertyParams{Name: b.RandomPropertyName()}
	case il.UpdatePropertyParams:
		newOp.Params = il.UpdatePropertyParams{Name: b.RandomPropertyName(), Op: randomBinaryOperator(rng)}
	case il.ElementParams:
		newOp.Params = il.ElementParams{Index: int64(rng.Intn(16)) - 4}
	case il.UpdateElementParams:
		newOp.Params = il.UpdateElementParams{Index: int64(rng.Intn(16)) - 4, Op: randomBinaryOperator(rng)}
	case il.UnaryOpParams:
		newOp.Params = il.UnaryOpParams{Op: il.AllUnaryOperators[rng.Intn(len(il.AllUnaryOperators))]}
	case il.BinaryOpParams:
		newOp.Params = il.BinaryOpParams{Op: randomBinaryOperator(rng)}
	case il.CompareParams:
		newOp.Params = il.CompareParams{Op: il.AllComparators[rng.Intn(len(il.AllComparators))]}
	case il.MethodParams:
		newOp.Params = il.MethodParams{Name: b.RandomMethodName()}
	case il.MethodSpreadParams:
		spreads := append([]bool(nil), p.Spreads...)
		if len(spreads) > 0 && probabilityHalf(b) {
			i := rng.Intn(len(spreads))
			spreads[i] = !spreads[i]
			newOp.Params = il.MethodSpreadParams{Name: p.Name, Spreads: spreads}
		} else {
			newOp.Params = il.MethodSpreadParams{Name: b.RandomMethodName(), Spreads: spreads}
		}
	case il.IfParams:
		newOp.Params = il.IfParams{Inverted: !p.Inverted}
	case il.LoopParams:
		newOp.Params = il.LoopParams{Comparator: il.AllComparators[rng.Intn(len(il.AllComparators))]}
	case il.ForLoopParams:
		newOp.Params = il.ForLoopParams{
			Comparator: il.AllComparators[rng.Intn(len(il.AllComparators))],
			Op:         randomBinaryOperator(rng),
		}
	case il.RepeatParams:
		newOp.Params = il.RepeatParams{Iterations: int64(1 + rng.Intn(1000))}
	case il.ClassMethodParams:
		newOp.Params = il.ClassMethodParams{Name: b.RandomMethodName(), NumParameters: p.NumParameters}
	default:
		return nil, fmt.Errorf("%s has no mutable parameters: %w", op.Opcode, ErrMutationFailed)
	}
	return &newOp, nil
}

func randomBinaryOperator(rng *rand.Rand) il.BinaryOperator {
	return il.AllBinaryOperators[rng.Intn(len(il.AllBinaryOperators))]
}
