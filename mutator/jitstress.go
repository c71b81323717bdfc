package mutator

import (
	"fmt"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// JITStressMutator reproduces the input program, optionally generates some
// additional code, and then repeatedly calls one of the program's
// function-typed values with freshly sampled arguments, re-invoking code the
// target engine may have JIT-compiled by then.
type JITStressMutator struct{}

// NewJITStressMutator creates a JIT stress mutator.
func NewJITStressMutator() Mutator { return &JITStressMutator{} }

// Name identifies the mutator.
func (m *JITStressMutator) Name() string { return "JITStressMutator" }

// warmupIterations is how often the stressed function is re-invoked.
const warmupIterations = 100

// Mutate implements the Mutator contract.
func (m *JITStressMutator) Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error) {
	b.SetParent(p)
	err := builder.CatchInvariantViolations(func() error {
		if err := b.AdoptProgram(p); err != nil {
			return err
		}
		if b.Rand().Intn(2) == 0 {
			// Extra code between definition and stress call shapes different
			// type feedback.
			_ = b.Build(host.Tunables().CodeGenerationAmount, builder.BuildByGenerating)
		}

		fn, ok := b.RandomVariableOfType(jstype.Function(nil))
		if !ok {
			if fn, ok = b.RandomVariableForUseAs(jstype.Function(nil)); !ok {
				return fmt.Errorf("no function-typed variable to stress: %w", ErrMutationFailed)
			}
		}
		args := b.RandomVariables(3)
		b.BeginRepeatLoop(warmupIterations)
		b.Emit(il.NewCallFunction(len(args), true), append([]il.Variable{fn}, args...)...)
		b.EndRepeatLoop()
		return nil
	})
	if err != nil {
		b.Discard()
		return nil, err
	}
	return b.Finalize()
}
