package mutator

import (
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// SpliceMutator copies a closed dataflow slice of a random corpus program
// into the mutated program at a selected live position.
type SpliceMutator struct{}

// NewSpliceMutator creates a splice mutator wrapped into the
// instruction-walk framework.
func NewSpliceMutator() Mutator {
	return NewBaseInstructionMutator(&SpliceMutator{})
}

// Name identifies the mutator.
func (m *SpliceMutator) Name() string { return "SpliceMutator" }

// CanMutate accepts non-block instructions as splice points.
func (m *SpliceMutator) CanMutate(instr il.Instruction) bool {
	return !instr.IsBlock()
}

// BeginMutation is stateless for this mutator.
func (m *SpliceMutator) BeginMutation(*il.Program, Host) {}

// MutateInstr re-emits the instruction, then splices a corpus slice after it.
func (m *SpliceMutator) MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, host Host) error {
	if err := b.Adopt(instr); err != nil {
		return err
	}
	if b.CurrentlyInDeadCode() {
		return nil
	}
	source := host.Corpus().RandomElementForSplicing()
	if source == nil || source.Size() == 0 {
		return fmt.Errorf("corpus offered no splice source: %w", ErrMutationFailed)
	}
	return b.SpliceRandom(source)
}
