package mutator

import (
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/analyzer"
	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// TypeAwareness selects how strictly the input mutator matches replacement
// variables.
type TypeAwareness int

const (
	// Loose replaces inputs with arbitrary visible variables.
	Loose TypeAwareness = iota

	// Aware requires replacements to be usable as the original input's
	// inferred type.
	Aware
)

// InputMutator replaces one input of an instruction with another visible
// variable. In type-aware mode the replacement must be usable as the
// original's inferred type, computed by a typer over the input program.
type InputMutator struct {
	awareness TypeAwareness
	typer     *analyzer.Typer
}

// NewInputMutator creates an input mutator with the given type awareness,
// wrapped into the instruction-walk framework.
func NewInputMutator(awareness TypeAwareness) Mutator {
	return NewBaseInstructionMutator(&InputMutator{awareness: awareness})
}

// Name identifies the mutator, including its awareness mode.
func (m *InputMutator) Name() string {
	if m.awareness == Aware {
		return "InputMutator (aware)"
	}
	return "InputMutator"
}

// CanMutate accepts instructions with at least one input.
func (m *InputMutator) CanMutate(instr il.Instruction) bool {
	return instr.NumInputs() > 0
}

// BeginMutation infers the input program's types for aware replacements.
func (m *InputMutator) BeginMutation(p *il.Program, _ Host) {
	m.typer = analyzer.NewTyper()
	if m.awareness == Aware {
		analyzer.AnalyzeProgram(m.typer, p)
	}
}

// MutateInstr replaces one randomly selected input.
func (m *InputMutator) MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, _ Host) error {
	inputs, err := adoptInputs(b, instr)
	if err != nil {
		return err
	}
	slot := b.Rand().Intn(len(inputs))

	var replacement il.Variable
	var ok bool
	switch {
	case instr.IsBlockEnd():
		// A block end executes outside the block, so its inputs must come
		// from the surrounding scope.
		replacement, ok = b.RandomVariableFromOuterScope()
	case m.awareness == Aware:
		replacement, ok = b.RandomVariableOfType(m.typer.Type(instr.Input(slot)))
	default:
		replacement, ok = b.RandomVariable()
	}
	if !ok {
		return fmt.Errorf("no replacement variable available: %w", ErrMutationFailed)
	}
	inputs[slot] = replacement
	return b.AdoptTransformed(instr, instr.Op, inputs)
}
