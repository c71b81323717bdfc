package engine

import "github.com/googleprojectzero/fuzzilli-sub008/mutator"

// MutatorStats counts the outcomes of one mutator.
type MutatorStats struct {
	Invocations   int
	Produced      int
	NotApplicable int
	Errors        int
}

// Statistics aggregates engine counters. All non-fatal failure classes end
// up here instead of aborting anything.
type Statistics struct {
	// PerMutator counts mutation outcomes by mutator name.
	PerMutator map[string]*MutatorStats

	// Instrumentation counts runtime-assisted protocol outcomes.
	Instrumentation map[mutator.InstrumentationOutcome]int

	// Executions counts target-engine runs by outcome.
	Executions map[mutator.ExecutionOutcome]int

	// Crashes counts crashed executions reported upstream.
	Crashes int
}

// NewStatistics creates zeroed statistics.
func NewStatistics() *Statistics {
	return &Statistics{
		PerMutator:      make(map[string]*MutatorStats),
		Instrumentation: make(map[mutator.InstrumentationOutcome]int),
		Executions:      make(map[mutator.ExecutionOutcome]int),
	}
}

func (s *Statistics) mutatorStats(name string) *MutatorStats {
	ms, ok := s.PerMutator[name]
	if !ok {
		ms = &MutatorStats{}
		s.PerMutator[name] = ms
	}
	return ms
}
