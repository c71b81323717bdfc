package analyzer

import "github.com/googleprojectzero/fuzzilli-sub008/il"

// DeadCodeAnalyzer tracks whether the current position follows an
// unconditional control-flow transfer within the innermost open block.
// Block boundaries re-enter live code: an else branch after a returning then
// branch is live, and so is the code after a try/catch that returns.
type DeadCodeAnalyzer struct {
	// dead holds one liveness flag per open block, innermost last. The first
	// entry is the top-level script.
	dead []bool
}

// NewDeadCodeAnalyzer creates an analyzer positioned before the first
// instruction of a program.
func NewDeadCodeAnalyzer() *DeadCodeAnalyzer {
	return &DeadCodeAnalyzer{dead: []bool{false}}
}

// Reset returns the analyzer to its initial state.
func (a *DeadCodeAnalyzer) Reset() {
	a.dead = a.dead[:0]
	a.dead = append(a.dead, false)
}

// Analyze advances the analyzer by one instruction.
func (a *DeadCodeAnalyzer) Analyze(instr il.Instruction) {
	switch {
	case instr.IsBlockEnd() && instr.IsBlockStart():
		// A group continuation (else, catch, finally) starts a fresh branch.
		a.dead[len(a.dead)-1] = false
	case instr.IsBlockStart():
		a.dead = append(a.dead, false)
	case instr.IsBlockEnd():
		if len(a.dead) > 1 {
			a.dead = a.dead[:len(a.dead)-1]
		}
	case instr.IsJump():
		a.dead[len(a.dead)-1] = true
	}
}

// CurrentlyInDeadCode reports whether the cursor is behind an unconditional
// terminator in the innermost block.
func (a *DeadCodeAnalyzer) CurrentlyInDeadCode() bool {
	return a.dead[len(a.dead)-1]
}
