package mutator

import (
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// CombineMutator appends an entire random corpus program after a selected
// instruction. Combination only happens where the context is exactly the
// script context: never inside a subroutine, loop, or other construct that
// provides a context of its own, so the inserted program's own structure
// cannot conflict with the surroundings. Blocks that keep the script context,
// such as if bodies, do qualify.
type CombineMutator struct{}

// NewCombineMutator creates a combine mutator wrapped into the
// instruction-walk framework.
func NewCombineMutator() Mutator {
	return NewBaseInstructionMutator(&CombineMutator{})
}

// Name identifies the mutator.
func (m *CombineMutator) Name() string { return "CombineMutator" }

// CanMutate accepts non-block instructions; the context restriction is
// checked during the walk.
func (m *CombineMutator) CanMutate(instr il.Instruction) bool {
	return !instr.IsBlock()
}

// BeginMutation is stateless for this mutator.
func (m *CombineMutator) BeginMutation(*il.Program, Host) {}

// MutateInstr re-emits the instruction and inlines a whole corpus program
// after it when at top level.
func (m *CombineMutator) MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, host Host) error {
	if err := b.Adopt(instr); err != nil {
		return err
	}
	if b.Context() != il.ContextScript || b.CurrentlyInDeadCode() {
		return nil
	}
	other := host.Corpus().RandomElement()
	if other == nil || other.Size() == 0 {
		return fmt.Errorf("corpus offered no program to combine with: %w", ErrMutationFailed)
	}
	return b.AdoptProgram(other)
}
