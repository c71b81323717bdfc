package analyzer

import "github.com/googleprojectzero/fuzzilli-sub008/il"

// ContextAnalyzer maintains the set of active contexts, mirroring the block
// nesting of the instruction stream.
type ContextAnalyzer struct {
	// stack holds the context of each open block, innermost last. The first
	// entry is the base script context.
	stack []il.Context
}

// NewContextAnalyzer creates an analyzer positioned at the base script
// context.
func NewContextAnalyzer() *ContextAnalyzer {
	return &ContextAnalyzer{stack: []il.Context{il.ContextScript}}
}

// Reset returns the analyzer to the base script context.
func (a *ContextAnalyzer) Reset() {
	a.stack = a.stack[:0]
	a.stack = append(a.stack, il.ContextScript)
}

// Analyze advances the analyzer by one instruction.
func (a *ContextAnalyzer) Analyze(instr il.Instruction) {
	isEnd, isStart := instr.IsBlockEnd(), instr.IsBlockStart()
	if isEnd && len(a.stack) > 1 {
		a.stack = a.stack[:len(a.stack)-1]
	}
	if isStart {
		a.stack = append(a.stack, il.InnerContext(a.Context(), instr.Op))
	}
}

// Context returns the set of contexts active after the last analyzed
// instruction.
func (a *ContextAnalyzer) Context() il.Context {
	return a.stack[len(a.stack)-1]
}
