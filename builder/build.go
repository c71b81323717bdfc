package builder

import (
	"math/rand"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// BuildStrategy selects how Build produces new code.
type BuildStrategy int

const (
	// BuildByGenerating produces code by running code generators.
	BuildByGenerating BuildStrategy = iota

	// BuildBySplicing produces code by splicing slices of foreign programs.
	BuildBySplicing

	// BuildHybrid mixes generation and splicing.
	BuildHybrid
)

// MinBudgetForRecursiveCodeGeneration is the smallest instruction budget with
// which a generator body will recurse into Build again.
const MinBudgetForRecursiveCodeGeneration = 5

// minVisibleVariablesForGeneration is the variable population guaranteed
// before a generator runs.
const minVisibleVariablesForGeneration = 3

// CodeGenerator is a small composable template emitting a valid code
// fragment. The framework gathers one input per declared type before calling
// the body.
type CodeGenerator struct {
	// Name identifies the generator in statistics and selection policies.
	Name string

	// RequiredContext must be active for the generator to be applicable.
	RequiredContext il.Context

	// InputTypes declares the inputs gathered for the body, each sampled with
	// may-be type matching.
	InputTypes []jstype.Type

	// Body emits the fragment. It may recurse through the builder's Build.
	Body func(b *ProgramBuilder, inputs []il.Variable)
}

// SelectionPolicy chooses among the eligible generators of a registry.
// Implementations range from weighted lists to adversarial bandits.
type SelectionPolicy interface {
	// Select picks one index out of eligible, which is never empty.
	Select(rng *rand.Rand, eligible []int) int
}

// GeneratorRegistry couples a generator list with a selection policy.
type GeneratorRegistry struct {
	generators []CodeGenerator
	policy     SelectionPolicy
}

// NewGeneratorRegistry creates a registry over the given generators.
func NewGeneratorRegistry(generators []CodeGenerator, policy SelectionPolicy) *GeneratorRegistry {
	return &GeneratorRegistry{generators: generators, policy: policy}
}

// NumGenerators returns the number of registered generators.
func (r *GeneratorRegistry) NumGenerators() int { return len(r.generators) }

// Generator returns the i-th registered generator.
func (r *GeneratorRegistry) Generator(i int) *CodeGenerator { return &r.generators[i] }

// selectGenerator picks an applicable generator for the given context.
func (r *GeneratorRegistry) selectGenerator(rng *rand.Rand, ctx il.Context) (*CodeGenerator, bool) {
	var eligible []int
	for i := range r.generators {
		if ctx.Contains(r.generators[i].RequiredContext) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}
	return &r.generators[r.policy.Select(rng, eligible)], true
}

// Build repeatedly adds code until n instructions have been generated, using
// the given strategy. It stops early when no applicable generator or splice
// source remains; having produced nothing at all is an error.
func (b *ProgramBuilder) Build(n int, strategy BuildStrategy) error {
	if n == 0 {
		return nil
	}
	start := len(b.code)
	failures := 0
	for len(b.code)-start < n && failures < 2*n+10 {
		ok := false
		switch strategy {
		case BuildByGenerating:
			ok = b.generateOnce()
		case BuildBySplicing:
			ok = b.spliceOnce()
		case BuildHybrid:
			if probability(b.rng, 0.5) {
				ok = b.generateOnce()
			} else {
				ok = b.spliceOnce()
			}
			// Fall back to the other strategy rather than giving up.
			if !ok {
				ok = b.generateOnce() || b.spliceOnce()
			}
		}
		if !ok {
			failures++
		}
	}
	if len(b.code) == start {
		return ErrNoCodeGenerated
	}
	return nil
}

// BuildRecursive is called from generator bodies to fill nested blocks. It
// derives a smaller budget from the remaining recursion depth and never goes
// below the minimum recursion budget.
func (b *ProgramBuilder) BuildRecursive() {
	depth := b.scopes.Depth()
	if depth < 1 {
		depth = 1
	}
	// The budget halves with every level of block nesting.
	budget := (2*MinBudgetForRecursiveCodeGeneration + b.rng.Intn(2*MinBudgetForRecursiveCodeGeneration)) >> (depth - 1)
	if budget < MinBudgetForRecursiveCodeGeneration {
		return
	}
	// Nothing having been generated inside a block is acceptable.
	_ = b.Build(budget, BuildByGenerating)
}

// generateOnce selects and runs one applicable code generator, reporting
// whether any code was emitted.
func (b *ProgramBuilder) generateOnce() bool {
	if b.registry == nil {
		return false
	}
	b.ensureVisibleVariables()
	gen, ok := b.registry.selectGenerator(b.rng, b.Context())
	if !ok {
		return false
	}
	inputs := make([]il.Variable, 0, len(gen.InputTypes))
	for _, t := range gen.InputTypes {
		v, ok := b.RandomVariableForUseAs(t)
		if !ok {
			return false
		}
		inputs = append(inputs, v)
	}
	before := len(b.code)
	gen.Body(b, inputs)
	if len(b.code) > before {
		b.usedGenerators = append(b.usedGenerators, gen.Name)
		return true
	}
	return false
}

// spliceOnce splices one random slice from the splice pool, reporting
// success.
func (b *ProgramBuilder) spliceOnce() bool {
	if b.splicePool == nil {
		return false
	}
	source := b.splicePool.RandomElementForSplicing()
	if source == nil || source.Size() == 0 {
		return false
	}
	return b.SpliceRandom(source) == nil
}

// ensureVisibleVariables emits value literals until the minimum variable
// population for generation is reached.
func (b *ProgramBuilder) ensureVisibleVariables() {
	for b.NumVisibleVariables() < minVisibleVariablesForGeneration {
		b.LoadRandomValue()
	}
}
