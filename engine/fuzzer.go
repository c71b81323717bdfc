package engine

import (
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/codegen"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/mutator"
)

// ResultKind discriminates the outcome of one mutation attempt.
type ResultKind int

const (
	// Produced means a new valid program was created.
	Produced ResultKind = iota

	// NotApplicable means the mutator could not act on this input; this is
	// routine and only counted.
	NotApplicable

	// Failed means something unexpected went wrong; it is counted and
	// logged, never fatal.
	Failed
)

// MutationResult is the sum-typed outcome of one mutation attempt.
type MutationResult struct {
	Kind    ResultKind
	Program *il.Program
	Mutator string
	Err     error
}

// Fuzzer owns one single-threaded fuzzing loop: a corpus, an executor, a
// lifter, the mutator set, and one builder reused across mutations. Mutators
// and the builder are not shared across goroutines; parallelism means
// multiple Fuzzer instances.
type Fuzzer struct {
	cfg      Config
	rng      *rand.Rand
	log      *zap.Logger
	corpus   Corpus
	executor Executor
	lifter   Lifter

	bandit   *codegen.Bandit
	builder  *builder.ProgramBuilder
	mutators []mutator.Mutator
	stats    *Statistics
}

// New creates a fuzzer instance. A nil logger disables logging; a zero seed
// derives one from the clock.
func New(cfg Config, corpus Corpus, executor Executor, lifter Lifter, log *zap.Logger) *Fuzzer {
	if log == nil {
		log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	gens := codegen.DefaultGenerators()
	bandit := codegen.NewBandit(codegen.GeneratorNames(gens))
	registry := builder.NewGeneratorRegistry(gens, bandit)

	f := &Fuzzer{
		cfg:      cfg,
		rng:      rng,
		log:      log.Named("engine"),
		corpus:   corpus,
		executor: executor,
		lifter:   lifter,
		bandit:   bandit,
		builder:  builder.New(rng, registry, corpus),
		stats:    NewStatistics(),
	}
	f.mutators = []mutator.Mutator{
		mutator.NewInputMutator(mutator.Loose),
		mutator.NewInputMutator(mutator.Aware),
		mutator.NewOperationMutator(),
		mutator.NewCodeGenMutator(),
		mutator.NewSpliceMutator(),
		mutator.NewCombineMutator(),
		mutator.NewJITStressMutator(),
		mutator.NewExplorationMutator(),
		mutator.NewProbingMutator(),
		mutator.NewFixupMutator(),
	}
	f.log.Info("fuzzer initialized",
		zap.Int64("seed", seed),
		zap.Int("mutators", len(f.mutators)),
		zap.Int("generators", len(gens)))
	return f
}

// Stats returns the engine counters.
func (f *Fuzzer) Stats() *Statistics { return f.stats }

// Mutators returns the configured mutator set.
func (f *Fuzzer) Mutators() []mutator.Mutator { return f.mutators }

// Tunables implements mutator.Host.
func (f *Fuzzer) Tunables() mutator.Tunables { return f.cfg.tunables() }

// Corpus implements mutator.Host.
func (f *Fuzzer) Corpus() mutator.Corpus { return f.corpus }

// ExecuteForFeedback implements mutator.Host: instrumented programs run with
// twice the base timeout.
func (f *Fuzzer) ExecuteForFeedback(p *il.Program) mutator.Execution {
	exec := f.executor.Execute(f.lifter.Lift(p), 2*f.cfg.timeout())
	f.recordExecution(exec)
	return exec
}

func (f *Fuzzer) recordExecution(exec mutator.Execution) {
	f.stats.Executions[exec.Outcome]++
	if exec.Outcome == mutator.ExecutionCrashed {
		// Crashes during feedback runs are still crashes; report upstream.
		f.stats.Crashes++
		f.log.Warn("target crashed during execution")
	}
}

// GenerateProgram builds a fresh program of roughly n instructions, used to
// seed an empty corpus.
func (f *Fuzzer) GenerateProgram(n int) (*il.Program, error) {
	err := builder.CatchInvariantViolations(func() error {
		return f.builder.Build(n, builder.BuildByGenerating)
	})
	if err != nil {
		f.builder.Discard()
		return nil, err
	}
	return f.builder.Finalize()
}

// RandomMutator picks one mutator uniformly.
func (f *Fuzzer) RandomMutator() mutator.Mutator {
	return f.mutators[f.rng.Intn(len(f.mutators))]
}

// Mutate runs one mutator over one program and classifies the outcome.
func (f *Fuzzer) Mutate(m mutator.Mutator, p *il.Program) MutationResult {
	ms := f.stats.mutatorStats(m.Name())
	ms.Invocations++

	out, err := m.Mutate(p, f.builder, f)
	switch {
	case err == nil && out != nil:
		if checkErr := out.Check(); checkErr != nil {
			// A mutator producing an invalid program is a bug in the core,
			// not an input problem.
			f.log.Error("mutator produced invalid program",
				zap.String("mutator", m.Name()), zap.Error(checkErr))
			ms.Errors++
			return MutationResult{Kind: Failed, Mutator: m.Name(), Err: checkErr}
		}
		ms.Produced++
		return MutationResult{Kind: Produced, Mutator: m.Name(), Program: out}
	case errors.Is(err, mutator.ErrMutationFailed):
		ms.NotApplicable++
		return MutationResult{Kind: NotApplicable, Mutator: m.Name(), Err: err}
	default:
		var ie *mutator.InstrumentationError
		if errors.As(err, &ie) {
			f.stats.Instrumentation[ie.Outcome]++
			ms.NotApplicable++
			f.log.Debug("instrumentation did not complete",
				zap.String("mutator", m.Name()), zap.String("outcome", ie.Outcome.String()))
			return MutationResult{Kind: NotApplicable, Mutator: m.Name(), Err: err}
		}
		ms.Errors++
		f.log.Debug("mutation error", zap.String("mutator", m.Name()), zap.Error(err))
		return MutationResult{Kind: Failed, Mutator: m.Name(), Err: err}
	}
}

// FuzzOne performs one iteration: pick a corpus program (generating one if
// the corpus is empty), mutate it, execute the result, and hand interesting
// programs back to the corpus. The produced program, if any, is returned for
// external coverage evaluation.
func (f *Fuzzer) FuzzOne() MutationResult {
	p := f.corpus.RandomElement()
	if p == nil || p.Size() < f.cfg.MinCorpusProgramSize {
		fresh, err := f.GenerateProgram(20)
		if err != nil {
			return MutationResult{Kind: Failed, Err: err}
		}
		f.corpus.Add(fresh)
		p = fresh
	}

	result := f.Mutate(f.RandomMutator(), p)
	if result.Kind != Produced {
		return result
	}

	exec := f.executor.Execute(f.lifter.Lift(result.Program), f.cfg.timeout())
	f.recordExecution(exec)
	if exec.Outcome == mutator.ExecutionSucceeded {
		f.corpus.Add(result.Program)
	}
	return result
}

// RecordCoverageFeedback credits the generators that contributed to a
// program with the coverage outcome of its execution. Coverage collection
// itself is an external concern; callers invoke this once they know whether
// the program grew coverage.
func (f *Fuzzer) RecordCoverageFeedback(usedGenerators []string, newCoverage bool) {
	for _, name := range usedGenerators {
		f.bandit.RecordOutcome(name, newCoverage)
	}
}
