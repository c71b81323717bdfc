package analyzer

import "github.com/googleprojectzero/fuzzilli-sub008/il"

// ScopeAnalyzer tracks which variables are visible at the current position.
//
// Outer outputs of a block-group start are deferred: they enter the enclosing
// scope only once the whole group has been closed, matching the rule that a
// function value is not usable inside its own definition by position. Inner
// outputs live in the frame of their block and go out of scope when the block
// ends or the group continues with its next branch.
type ScopeAnalyzer struct {
	// scopes holds one variable frame per nesting level, outermost first.
	scopes [][]il.Variable

	// deferred holds, per open block group, the outer outputs that become
	// visible when the group closes.
	deferred [][]il.Variable
}

// NewScopeAnalyzer creates an analyzer with a single empty top-level scope.
func NewScopeAnalyzer() *ScopeAnalyzer {
	return &ScopeAnalyzer{scopes: [][]il.Variable{nil}}
}

// Reset returns the analyzer to a single empty top-level scope.
func (a *ScopeAnalyzer) Reset() {
	a.scopes = a.scopes[:0]
	a.scopes = append(a.scopes, nil)
	a.deferred = a.deferred[:0]
}

// Analyze advances the analyzer by one instruction.
func (a *ScopeAnalyzer) Analyze(instr il.Instruction) {
	isEnd, isStart := instr.IsBlockEnd(), instr.IsBlockStart()
	switch {
	case isEnd && isStart:
		// Group continuation: the previous branch's frame dies, the next
		// branch starts fresh with the continuation's inner outputs.
		a.popScope()
		a.pushScope(instr.InnerOutputs())
	case isStart:
		a.deferred = append(a.deferred, instr.Outputs())
		a.pushScope(instr.InnerOutputs())
	case isEnd:
		a.popScope()
		if n := len(a.deferred); n > 0 {
			a.addToCurrent(a.deferred[n-1])
			a.deferred = a.deferred[:n-1]
		}
	default:
		a.addToCurrent(instr.Outputs())
		a.addToCurrent(instr.InnerOutputs())
	}
}

func (a *ScopeAnalyzer) pushScope(vars []il.Variable) {
	frame := make([]il.Variable, len(vars))
	copy(frame, vars)
	a.scopes = append(a.scopes, frame)
}

func (a *ScopeAnalyzer) popScope() {
	if len(a.scopes) > 1 {
		a.scopes = a.scopes[:len(a.scopes)-1]
	}
}

func (a *ScopeAnalyzer) addToCurrent(vars []il.Variable) {
	top := len(a.scopes) - 1
	a.scopes[top] = append(a.scopes[top], vars...)
}

// VisibleVariables returns every variable in scope at the current position,
// in definition order per frame, outer frames first. The returned slice is
// freshly allocated.
func (a *ScopeAnalyzer) VisibleVariables() []il.Variable {
	var out []il.Variable
	for _, frame := range a.scopes {
		out = append(out, frame...)
	}
	return out
}

// VariablesFromOuterScope returns the visible variables excluding those of
// the innermost frame.
func (a *ScopeAnalyzer) VariablesFromOuterScope() []il.Variable {
	var out []il.Variable
	for _, frame := range a.scopes[:len(a.scopes)-1] {
		out = append(out, frame...)
	}
	return out
}

// NumVisibleVariables returns the number of variables in scope.
func (a *ScopeAnalyzer) NumVisibleVariables() int {
	n := 0
	for _, frame := range a.scopes {
		n += len(frame)
	}
	return n
}

// Depth returns the current block nesting depth, zero at top level.
func (a *ScopeAnalyzer) Depth() int { return len(a.scopes) - 1 }
