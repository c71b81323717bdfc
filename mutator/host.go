package mutator

import (
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// Tunables holds the configuration knobs consulted by mutators. It is
// threaded through the engine explicitly; there is no process-wide state.
type Tunables struct {
	// MaxSimultaneousMutations bounds how many instructions one mutation may
	// rewrite.
	MaxSimultaneousMutations int

	// CodeGenerationAmount is the number of instructions the code generation
	// mutator inserts per selected position.
	CodeGenerationAmount int

	// MaxRuntimeAssistedInstrumentations bounds how many instrumentation
	// points one runtime-assisted mutation inserts.
	MaxRuntimeAssistedInstrumentations int
}

// DefaultTunables returns the default mutation configuration.
func DefaultTunables() Tunables {
	return Tunables{
		MaxSimultaneousMutations:           7,
		CodeGenerationAmount:               5,
		MaxRuntimeAssistedInstrumentations: 4,
	}
}

// Corpus supplies existing programs for splicing and combining. Tagging and
// eviction are the corpus's own concern.
type Corpus interface {
	// RandomElement returns one corpus program.
	RandomElement() *il.Program

	// RandomElementForSplicing returns a program suited as a splice source.
	RandomElementForSplicing() *il.Program
}

// ExecutionOutcome classifies one execution of a program by the target
// engine.
type ExecutionOutcome int

const (
	// ExecutionSucceeded means the program ran to completion.
	ExecutionSucceeded ExecutionOutcome = iota

	// ExecutionFailed means the program exited with a nonzero status.
	ExecutionFailed

	// ExecutionTimedOut means the execution hit its deadline.
	ExecutionTimedOut

	// ExecutionCrashed means the target died on a signal.
	ExecutionCrashed
)

// Execution is the observable result of running a program against the target
// engine. The mutation subsystem only ever reads the dedicated fuzzout
// channel; stdout and stderr pass through untouched.
type Execution struct {
	Outcome ExecutionOutcome
	Stdout  string
	Stderr  string
	Fuzzout string
}

// Host is the slice of the fuzzer engine visible to mutators.
type Host interface {
	// Tunables returns the mutation configuration.
	Tunables() Tunables

	// Corpus returns the program corpus.
	Corpus() Corpus

	// ExecuteForFeedback lifts and runs an instrumented program with an
	// increased timeout, returning what the engine observed.
	ExecuteForFeedback(p *il.Program) Execution
}
