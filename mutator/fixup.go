package mutator

import (
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// FixupMutator lets the runtime repair fragile operations: guarded
// operations that no longer throw lose their guard, and operation parameters
// the runtime found better values for (such as a property name that actually
// exists) are replaced. Each candidate instruction is swapped for a Fixup
// point carrying the operation encoded as an action; the runtime either
// reports a revised action or a failure, in which case the original
// operation is kept.
type FixupMutator struct{}

// NewFixupMutator creates a fixup mutator.
func NewFixupMutator() Mutator { return &FixupMutator{} }

// Name identifies the mutator.
func (m *FixupMutator) Name() string { return "FixupMutator" }

// actionFromInstruction encodes a candidate instruction as the action the
// runtime should attempt. Inputs beyond the subject are referenced by
// argument index.
func actionFromInstruction(instr il.Instruction, id string) *Action {
	op := instr.Op
	argRefs := func(from, to int) []ActionInput {
		var inputs []ActionInput
		for i := from; i < to; i++ {
			idx := i - 1 // argument indices are relative to the subject
			inputs = append(inputs, ActionInput{ArgumentIndex: &idx})
		}
		return inputs
	}
	str := func(s string) *string { return &s }
	i64 := func(i int64) *int64 { return &i }

	a := &Action{ID: id, IsGuarded: op.Guarded}
	switch p := op.Params.(type) {
	case il.PropertyParams:
		switch op.Opcode {
		case il.OpGetProperty:
			a.Operation = ActionGetProperty
			a.Inputs = []ActionInput{{PropertyName: str(p.Name)}}
		case il.OpSetProperty:
			a.Operation = ActionSetProperty
			a.Inputs = append([]ActionInput{{PropertyName: str(p.Name)}}, argRefs(1, op.NumInputs())...)
		case il.OpDeleteProperty:
			a.Operation = ActionDeleteProperty
			a.Inputs = []ActionInput{{PropertyName: str(p.Name)}}
		default:
			return nil
		}
	case il.ElementParams:
		switch op.Opcode {
		case il.OpGetElement:
			a.Operation = ActionGetElement
			a.Inputs = []ActionInput{{ElementIndex: i64(p.Index)}}
		case il.OpSetElement:
			a.Operation = ActionSetElement
			a.Inputs = append([]ActionInput{{ElementIndex: i64(p.Index)}}, argRefs(1, op.NumInputs())...)
		default:
			return nil
		}
	case il.MethodParams:
		if op.Opcode != il.OpCallMethod {
			return nil
		}
		a.Operation = ActionCallMethod
		a.Inputs = append([]ActionInput{{MethodName: str(p.Name)}}, argRefs(1, op.NumInputs())...)
	default:
		switch op.Opcode {
		case il.OpCallFunction:
			a.Operation = ActionCallFunction
			a.Inputs = argRefs(1, op.NumInputs())
		case il.OpConstruct:
			a.Operation = ActionConstruct
			a.Inputs = argRefs(1, op.NumInputs())
		case il.OpTestInstanceOf:
			a.Operation = ActionTestInstanceOf
			a.Inputs = argRefs(1, op.NumInputs())
		default:
			return nil
		}
	}
	return a
}

// fixupCandidate accepts instructions encodable as actions, guarded or not;
// sites are then chosen uniformly among them.
func fixupCandidate(instr il.Instruction) bool {
	if instr.NumInputs() == 0 || instr.NumInnerOutputs() > 0 {
		return false
	}
	return actionFromInstruction(instr, "probe") != nil
}

// Mutate implements the runtime-assisted protocol for fixup.
func (m *FixupMutator) Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error) {
	fail := func(outcome InstrumentationOutcome, detail string) (*il.Program, error) {
		return nil, &InstrumentationError{Mutator: m.Name(), Outcome: outcome, Detail: detail}
	}

	sites := selectInstrumentationSites(p, b, host.Tunables().MaxRuntimeAssistedInstrumentations, fixupCandidate)
	if sites == nil {
		return fail(CannotInstrument, "")
	}

	// Instrument: swap each selected instruction for a Fixup point that
	// reproduces its shape, remembering the original for retention.
	originals := make(map[string]il.Instruction)
	b.SetParent(p)
	err := builder.CatchInvariantViolations(func() error {
		return b.Adopting(p, func() error {
			for _, instr := range p.Code {
				if !sites[instr.Index()] {
					if err := b.Adopt(instr); err != nil {
						return err
					}
					continue
				}
				id := fmt.Sprintf("fixup%d", instr.Index())
				action := actionFromInstruction(instr, id)
				originals[id] = instr
				locals, err := adoptInputs(b, instr)
				if err != nil {
					return err
				}
				fixup := il.NewFixup(id, action.Encode(), instr.NumInputs(), instr.NumOutputs())
				if err := b.AdoptTransformed(instr, fixup, locals); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		b.Discard()
		return fail(CannotInstrument, err.Error())
	}
	instrumented, err := b.Finalize()
	if err != nil {
		return fail(CannotInstrument, err.Error())
	}

	// Execute and parse.
	exec := host.ExecuteForFeedback(instrumented)
	if outcome, ok := checkExecution(exec); !ok {
		return fail(outcome, "")
	}
	fb, outcome, detail := parseFuzzout("FIXUP", exec.Fuzzout)
	if outcome != InstrumentationSuccess {
		return fail(outcome, detail)
	}

	// Rewrite: translate revised actions, keep originals where the runtime
	// reported failure or stayed silent.
	return rewriteInstrumented(instrumented, b, p, func(instr il.Instruction) (bool, error) {
		params, ok := instr.Op.Params.(il.FixupParams)
		if !ok {
			return false, nil
		}
		original, known := originals[params.ID]
		if !known {
			return false, fmt.Errorf("fixup point %q has no recorded original: %w", params.ID, ErrMutationFailed)
		}
		locals, err := adoptInputs(b, instr)
		if err != nil {
			return false, err
		}

		action := fb.actions[params.ID]
		if action != nil && !fb.failures[params.ID] {
			ctx := &ActionContext{Subject: locals[0], Arguments: locals[1:]}
			result, hasResult, err := action.Translate(ctx, b)
			if err == nil {
				return true, m.mapResult(instr, b, result, hasResult)
			}
			// Fall through to retention on a malformed revision.
		}
		return true, b.AdoptTransformed(instr, original.Op, locals)
	})
}

// mapResult wires the translated action's result to the Fixup point's
// outputs so downstream uses keep resolving.
func (m *FixupMutator) mapResult(instr il.Instruction, b *builder.ProgramBuilder, result il.Variable, hasResult bool) error {
	if instr.NumOutputs() == 0 {
		return nil
	}
	if !hasResult {
		result = b.LoadUndefined()
	}
	return b.MapVariable(instr.Output(), result)
}
