// Package analyzer provides incremental passes over an instruction stream.
//
// Each analyzer is a plain state struct with an Analyze step function that is
// invoked in program order. The state exposed by an analyzer is meaningful
// after the most recent instruction has been considered; analyzers never
// modify the program model.
package analyzer

import "github.com/googleprojectzero/fuzzilli-sub008/il"

// Analyzer is the contract shared by all incremental passes.
type Analyzer interface {
	// Analyze advances the pass by one instruction.
	Analyze(instr il.Instruction)
}

// AnalyzeProgram runs an analyzer over a whole program.
func AnalyzeProgram(a Analyzer, p *il.Program) {
	for _, instr := range p.Code {
		a.Analyze(instr)
	}
}
