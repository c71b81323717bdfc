package mutator

import (
	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// CodeGenMutator inserts freshly generated code after selected live-code
// positions, using the builder's recursive code generation.
type CodeGenMutator struct{}

// NewCodeGenMutator creates a code generation mutator wrapped into the
// instruction-walk framework.
func NewCodeGenMutator() Mutator {
	return NewBaseInstructionMutator(&CodeGenMutator{})
}

// Name identifies the mutator.
func (m *CodeGenMutator) Name() string { return "CodeGenMutator" }

// CanMutate accepts any non-block instruction as an insertion point; whether
// the position is live is only known during the walk.
func (m *CodeGenMutator) CanMutate(instr il.Instruction) bool {
	return !instr.IsBlock()
}

// BeginMutation is stateless for this mutator.
func (m *CodeGenMutator) BeginMutation(*il.Program, Host) {}

// MutateInstr re-emits the instruction and generates new code after it.
func (m *CodeGenMutator) MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, host Host) error {
	if err := b.Adopt(instr); err != nil {
		return err
	}
	if b.CurrentlyInDeadCode() {
		// Generating unreachable code is pointless; keep the adoption.
		return nil
	}
	return b.Build(host.Tunables().CodeGenerationAmount, builder.BuildByGenerating)
}
