// Package mutator implements the mutation subsystem: the mutator contract,
// the instruction-level mutation loop, the concrete structural mutators, and
// the runtime-assisted mutation protocol.
//
// A mutator consumes an immutable input program and either produces a new
// program through a ProgramBuilder or reports that the mutation was not
// applicable. Builder invariant violations are caught at the mutation
// boundary and surface as failed mutations, never as partial programs.
package mutator

import (
	"errors"
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// ErrMutationFailed reports that a mutator could not produce a program: its
// candidate set was empty, a precondition did not hold, or the builder
// rejected the attempt. This is an expected outcome, not an error condition.
var ErrMutationFailed = errors.New("mutation failed")

// Mutator transforms one program into another.
type Mutator interface {
	// Name identifies the mutator in statistics.
	Name() string

	// Mutate produces a new program derived from p, constructing it through
	// b. A nil program with ErrMutationFailed means the mutation was not
	// applicable; any other error indicates an instrumentation outcome or an
	// internal failure.
	Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error)
}

// InstructionMutator is the contract implemented by mutators that rewrite
// individual instructions while the framework replays the rest of the
// program.
type InstructionMutator interface {
	// Name identifies the mutator in statistics.
	Name() string

	// CanMutate reports whether the mutator applies to this instruction.
	CanMutate(instr il.Instruction) bool

	// BeginMutation resets any per-mutation analyzer state before the walk.
	BeginMutation(p *il.Program, host Host)

	// MutateInstr rewrites one selected instruction through the builder. The
	// builder is inside an adoption session for the input program; foreign
	// variables resolve through it.
	MutateInstr(instr il.Instruction, b *builder.ProgramBuilder, host Host) error
}

// BaseInstructionMutator drives an InstructionMutator over a program: it
// collects the mutable instructions, selects up to MaxSimultaneousMutations
// of them uniformly, and replays the program through the builder, rewriting
// the selected instructions and adopting the rest unchanged.
type BaseInstructionMutator struct {
	impl InstructionMutator
}

// NewBaseInstructionMutator wraps an InstructionMutator into a Mutator.
func NewBaseInstructionMutator(impl InstructionMutator) *BaseInstructionMutator {
	return &BaseInstructionMutator{impl: impl}
}

// Name returns the wrapped mutator's name.
func (m *BaseInstructionMutator) Name() string { return m.impl.Name() }

// Mutate implements the Mutator contract.
func (m *BaseInstructionMutator) Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error) {
	var candidates []int
	for _, instr := range p.Code {
		if m.impl.CanMutate(instr) {
			candidates = append(candidates, instr.Index())
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: no mutable instruction: %w", m.Name(), ErrMutationFailed)
	}

	maxMutations := host.Tunables().MaxSimultaneousMutations
	n := 1
	if maxMutations > 1 {
		n = 1 + b.Rand().Intn(maxMutations)
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	b.Rand().Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	selected := make(map[int]bool, n)
	for _, idx := range candidates[:n] {
		selected[idx] = true
	}

	m.impl.BeginMutation(p, host)
	b.SetParent(p)

	err := builder.CatchInvariantViolations(func() error {
		return b.Adopting(p, func() error {
			for _, instr := range p.Code {
				if selected[instr.Index()] {
					if err := m.impl.MutateInstr(instr, b, host); err != nil {
						return err
					}
				} else if err := b.Adopt(instr); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("%s: %w", m.Name(), errors.Join(err, ErrMutationFailed))
	}
	out, err := b.Finalize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), errors.Join(err, ErrMutationFailed))
	}
	return out, nil
}

// adoptInputs translates a foreign instruction's inputs into local variables
// through the active adoption session.
func adoptInputs(b *builder.ProgramBuilder, instr il.Instruction) ([]il.Variable, error) {
	inputs := make([]il.Variable, instr.NumInputs())
	for i, v := range instr.Inputs() {
		local, err := b.AdoptVariable(v)
		if err != nil {
			return nil, err
		}
		inputs[i] = local
	}
	return inputs, nil
}
