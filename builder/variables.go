package builder

import (
	"math/rand"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// chooseVariable samples one variable uniformly, reporting failure on an
// empty candidate set.
func chooseVariable(rng *rand.Rand, vars []il.Variable) (il.Variable, bool) {
	if len(vars) == 0 {
		return 0, false
	}
	return vars[rng.Intn(len(vars))], true
}

// probability returns true with probability p.
func probability(rng *rand.Rand, p float64) bool {
	return rng.Float64() < p
}

// VisibleVariables returns every variable in scope at the cursor.
func (b *ProgramBuilder) VisibleVariables() []il.Variable {
	return b.scopes.VisibleVariables()
}

// NumVisibleVariables returns the number of variables in scope.
func (b *ProgramBuilder) NumVisibleVariables() int {
	return b.scopes.NumVisibleVariables()
}

// HasVisibleVariables reports whether any variable is in scope.
func (b *ProgramBuilder) HasVisibleVariables() bool {
	return b.scopes.NumVisibleVariables() > 0
}

// RandomVariable samples a visible variable uniformly.
func (b *ProgramBuilder) RandomVariable() (il.Variable, bool) {
	return chooseVariable(b.rng, b.scopes.VisibleVariables())
}

// RandomVariableOfType samples a visible variable that definitely is of the
// requested type.
func (b *ProgramBuilder) RandomVariableOfType(t jstype.Type) (il.Variable, bool) {
	return chooseVariable(b.rng, b.filterVariables(func(v il.Variable) bool {
		return b.typer.Type(v).Is(t)
	}))
}

// RandomVariableForUseAs samples a visible variable that may be of the
// requested type. Untyped variables qualify for every request.
func (b *ProgramBuilder) RandomVariableForUseAs(t jstype.Type) (il.Variable, bool) {
	return chooseVariable(b.rng, b.filterVariables(func(v il.Variable) bool {
		return b.typer.Type(v).MayBe(t)
	}))
}

// RandomVariableFromOuterScope samples a visible variable defined outside the
// innermost block.
func (b *ProgramBuilder) RandomVariableFromOuterScope() (il.Variable, bool) {
	return chooseVariable(b.rng, b.scopes.VariablesFromOuterScope())
}

// RandomVariables returns a non-empty prefix of a shuffled selection of
// visible variables, at most upTo long.
func (b *ProgramBuilder) RandomVariables(upTo int) []il.Variable {
	visible := b.scopes.VisibleVariables()
	if len(visible) == 0 || upTo <= 0 {
		return nil
	}
	shuffled := make([]il.Variable, len(visible))
	copy(shuffled, visible)
	b.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n := 1 + b.rng.Intn(upTo)
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// filterVariables returns the visible variables satisfying pred.
func (b *ProgramBuilder) filterVariables(pred func(il.Variable) bool) []il.Variable {
	var out []il.Variable
	for _, v := range b.scopes.VisibleVariables() {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}
