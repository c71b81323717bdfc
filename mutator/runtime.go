package mutator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// InstrumentationOutcome classifies one run of the runtime-assisted
// protocol. Outcomes are aggregated into statistics; none of them is an
// error condition of the fuzzer itself.
type InstrumentationOutcome int

const (
	// InstrumentationSuccess means actions were received and translated.
	InstrumentationSuccess InstrumentationOutcome = iota

	// CannotInstrument means the program offered no instrumentation point.
	CannotInstrument

	// InstrumentedProgramFailed means the instrumented program did not run to
	// completion.
	InstrumentedProgramFailed

	// InstrumentedProgramTimedOut means the instrumented run hit its
	// deadline.
	InstrumentedProgramTimedOut

	// NoResults means the run completed but reported nothing.
	NoResults

	// UnexpectedError means the runtime reported an error outside the
	// tolerated set.
	UnexpectedError
)

var instrumentationOutcomeNames = [...]string{
	"success", "cannotInstrument", "instrumentedProgramFailed",
	"instrumentedProgramTimedOut", "noResults", "unexpectedError",
}

// String returns the outcome's statistics label.
func (o InstrumentationOutcome) String() string {
	if int(o) < len(instrumentationOutcomeNames) {
		return instrumentationOutcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// InstrumentationError carries a non-success protocol outcome out of a
// runtime-assisted mutator.
type InstrumentationError struct {
	Mutator string
	Outcome InstrumentationOutcome
	Detail  string
}

// Error renders the outcome for logs.
func (e *InstrumentationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Mutator, e.Outcome)
	}
	return fmt.Sprintf("%s: %s: %s", e.Mutator, e.Outcome, e.Detail)
}

// toleratedRuntimeErrors are error reports that do not invalidate a run:
// they are ordinary consequences of running generated code near engine
// limits.
var toleratedRuntimeErrors = []string{
	"maximum call stack size exceeded",
	"out of memory",
	"too much recursion",
}

func isToleratedRuntimeError(text string) bool {
	lowered := strings.ToLower(text)
	for _, t := range toleratedRuntimeErrors {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}

// feedback is the parsed result of one instrumented execution.
type feedback struct {
	actions  map[string]*Action
	failures map[string]bool
}

// parseFuzzout scans the dedicated output channel for lines tagged by one
// protocol participant. The detail string is only meaningful for
// UnexpectedError.
func parseFuzzout(tag, out string) (*feedback, InstrumentationOutcome, string) {
	fb := &feedback{
		actions:  make(map[string]*Action),
		failures: make(map[string]bool),
	}
	actionPrefix := tag + "_ACTION: "
	failurePrefix := tag + "_FAILURE: "
	errorPrefix := tag + "_ERROR: "

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, actionPrefix):
			action, err := ParseAction([]byte(strings.TrimPrefix(line, actionPrefix)))
			if err != nil {
				return nil, UnexpectedError, err.Error()
			}
			fb.actions[action.ID] = action
		case strings.HasPrefix(line, failurePrefix):
			fb.failures[strings.TrimPrefix(line, failurePrefix)] = true
		case strings.HasPrefix(line, errorPrefix):
			text := strings.TrimPrefix(line, errorPrefix)
			if !isToleratedRuntimeError(text) {
				return nil, UnexpectedError, text
			}
		}
	}
	if len(fb.actions) == 0 && len(fb.failures) == 0 {
		return nil, NoResults, ""
	}
	return fb, InstrumentationSuccess, ""
}

// checkExecution maps an execution outcome to a protocol outcome. Crashed
// runs proceed with whatever partial output exists: the crash itself is
// reported upstream through the executor, and the partial feedback may still
// yield a program.
func checkExecution(exec Execution) (InstrumentationOutcome, bool) {
	switch exec.Outcome {
	case ExecutionTimedOut:
		return InstrumentedProgramTimedOut, false
	case ExecutionFailed:
		return InstrumentedProgramFailed, false
	default:
		return InstrumentationSuccess, true
	}
}

// selectInstrumentationSites picks up to max instructions satisfying pred,
// uniformly.
func selectInstrumentationSites(p *il.Program, b *builder.ProgramBuilder, max int, pred func(il.Instruction) bool) map[int]bool {
	var candidates []int
	for _, instr := range p.Code {
		if pred(instr) {
			candidates = append(candidates, instr.Index())
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	b.Rand().Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if max < len(candidates) {
		candidates = candidates[:max]
	}
	sites := make(map[int]bool, len(candidates))
	for _, idx := range candidates {
		sites[idx] = true
	}
	return sites
}

// ExplorationMutator asks the runtime what can be done with selected values:
// it inserts Explore points after value definitions, executes the program,
// and replaces each point with the action the runtime chose for it.
type ExplorationMutator struct{}

// NewExplorationMutator creates an exploration mutator.
func NewExplorationMutator() Mutator { return &ExplorationMutator{} }

// Name identifies the mutator.
func (m *ExplorationMutator) Name() string { return "ExplorationMutator" }

// exploreCandidate accepts plain instructions whose outer output can be
// explored right after its definition.
func exploreCandidate(instr il.Instruction) bool {
	return !instr.IsBlock() && instr.NumOutputs() > 0
}

// Mutate implements the runtime-assisted protocol for exploration.
func (m *ExplorationMutator) Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error) {
	fail := func(outcome InstrumentationOutcome, detail string) (*il.Program, error) {
		return nil, &InstrumentationError{Mutator: m.Name(), Outcome: outcome, Detail: detail}
	}

	sites := selectInstrumentationSites(p, b, host.Tunables().MaxRuntimeAssistedInstrumentations, exploreCandidate)
	if sites == nil {
		return fail(CannotInstrument, "")
	}

	// Instrument.
	b.SetParent(p)
	instrumented, err := instrumentProgram(p, b, func(instr il.Instruction) error {
		if !sites[instr.Index()] || b.CurrentlyInDeadCode() {
			return nil
		}
		subject, err := b.AdoptVariable(instr.Output())
		if err != nil {
			return err
		}
		args := b.RandomVariables(5)
		id := fmt.Sprintf("explore%d", instr.Index())
		b.Emit(il.NewExplore(id, len(args)), append([]il.Variable{subject}, args...)...)
		return nil
	})
	if err != nil {
		b.Discard()
		return fail(CannotInstrument, err.Error())
	}

	// Execute and parse.
	exec := host.ExecuteForFeedback(instrumented)
	if outcome, ok := checkExecution(exec); !ok {
		return fail(outcome, "")
	}
	fb, outcome, detail := parseFuzzout("EXPLORE", exec.Fuzzout)
	if outcome != InstrumentationSuccess {
		return fail(outcome, detail)
	}

	// Rewrite.
	return rewriteInstrumented(instrumented, b, p, func(instr il.Instruction) (bool, error) {
		params, ok := instr.Op.Params.(il.ExploreParams)
		if !ok {
			return false, nil
		}
		action := fb.actions[params.ID]
		if action == nil || fb.failures[params.ID] {
			// Nothing learned for this point; drop the instrumentation.
			return true, nil
		}
		locals, err := adoptInputs(b, instr)
		if err != nil {
			return false, err
		}
		ctx := &ActionContext{Subject: locals[0], Arguments: locals[1:]}
		if _, _, err := action.Translate(ctx, b); err != nil {
			// A malformed action only loses this point, not the mutation.
			return true, nil
		}
		return true, nil
	})
}

// ProbingMutator lets the runtime report how selected values are used and
// materializes the reported operations into the program.
type ProbingMutator struct{}

// NewProbingMutator creates a probing mutator.
func NewProbingMutator() Mutator { return &ProbingMutator{} }

// Name identifies the mutator.
func (m *ProbingMutator) Name() string { return "ProbingMutator" }

// Mutate implements the runtime-assisted protocol for probing.
func (m *ProbingMutator) Mutate(p *il.Program, b *builder.ProgramBuilder, host Host) (*il.Program, error) {
	fail := func(outcome InstrumentationOutcome, detail string) (*il.Program, error) {
		return nil, &InstrumentationError{Mutator: m.Name(), Outcome: outcome, Detail: detail}
	}

	sites := selectInstrumentationSites(p, b, host.Tunables().MaxRuntimeAssistedInstrumentations, exploreCandidate)
	if sites == nil {
		return fail(CannotInstrument, "")
	}

	b.SetParent(p)
	instrumented, err := instrumentProgram(p, b, func(instr il.Instruction) error {
		if !sites[instr.Index()] || b.CurrentlyInDeadCode() {
			return nil
		}
		subject, err := b.AdoptVariable(instr.Output())
		if err != nil {
			return err
		}
		b.Emit(il.NewProbe(fmt.Sprintf("probe%d", instr.Index())), subject)
		return nil
	})
	if err != nil {
		b.Discard()
		return fail(CannotInstrument, err.Error())
	}

	exec := host.ExecuteForFeedback(instrumented)
	if outcome, ok := checkExecution(exec); !ok {
		return fail(outcome, "")
	}
	fb, outcome, detail := parseFuzzout("PROBE", exec.Fuzzout)
	if outcome != InstrumentationSuccess {
		return fail(outcome, detail)
	}

	return rewriteInstrumented(instrumented, b, p, func(instr il.Instruction) (bool, error) {
		params, ok := instr.Op.Params.(il.ProbeParams)
		if !ok {
			return false, nil
		}
		action := fb.actions[params.ID]
		if action == nil || fb.failures[params.ID] {
			return true, nil
		}
		subject, err := b.AdoptVariable(instr.Input(0))
		if err != nil {
			return false, err
		}
		ctx := &ActionContext{Subject: subject}
		if _, _, err := action.Translate(ctx, b); err != nil {
			return true, nil
		}
		return true, nil
	})
}

// instrumentProgram replays p through the builder, calling insert after each
// adopted instruction, and finalizes the instrumented program.
func instrumentProgram(p *il.Program, b *builder.ProgramBuilder, insert func(il.Instruction) error) (*il.Program, error) {
	err := builder.CatchInvariantViolations(func() error {
		return b.Adopting(p, func() error {
			for _, instr := range p.Code {
				if err := b.Adopt(instr); err != nil {
					return err
				}
				if err := insert(instr); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return b.Finalize()
}

// rewriteInstrumented replays the instrumented program, letting handle
// consume instrumentation instructions. handle reports whether it consumed
// the instruction; unconsumed ones are adopted unchanged. The final program
// records parent as its origin.
func rewriteInstrumented(instrumented *il.Program, b *builder.ProgramBuilder, parent *il.Program, handle func(il.Instruction) (bool, error)) (*il.Program, error) {
	b.SetParent(parent)
	err := builder.CatchInvariantViolations(func() error {
		return b.Adopting(instrumented, func() error {
			for _, instr := range instrumented.Code {
				consumed, err := handle(instr)
				if err != nil {
					return err
				}
				if consumed {
					continue
				}
				if err := b.Adopt(instr); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("rewriting instrumented program: %w", errors.Join(err, ErrMutationFailed))
	}
	return b.Finalize()
}
