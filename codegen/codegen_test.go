package codegen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

func TestWeightedListDistribution(t *testing.T) {
	list := NewWeightedList([]float64{1, 0, 9})
	rng := rand.New(rand.NewSource(1))

	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[list.Select(rng, []int{0, 2})]++
	}
	assert.Zero(t, counts[1])
	assert.Greater(t, counts[2], counts[0]*3, "arm 2 carries 9x the weight of arm 0")
}

func TestWeightedListRespectsEligibility(t *testing.T) {
	list := NewWeightedList([]float64{100, 1, 1})
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		got := list.Select(rng, []int{1, 2})
		assert.NotEqual(t, 0, got)
	}
}

func TestBanditSelectsAllArmsInitially(t *testing.T) {
	bandit := NewBandit([]string{"a", "b", "c", "d"})
	rng := rand.New(rand.NewSource(3))
	eligible := []int{0, 1, 2, 3}

	counts := map[int]int{}
	for i := 0; i < 2000; i++ {
		counts[bandit.Select(rng, eligible)]++
	}
	for _, i := range eligible {
		assert.Greater(t, counts[i], 0, "arm %d never selected", i)
	}
}

func TestBanditFavorsRewardedArm(t *testing.T) {
	names := []string{"good", "bad"}
	bandit := NewBandit(names)
	rng := rand.New(rand.NewSource(4))
	eligible := []int{0, 1}

	// The good arm finds coverage often, the bad arm never does.
	for i := 0; i < 500; i++ {
		idx := bandit.Select(rng, eligible)
		name := names[idx]
		bandit.RecordOutcome(name, name == "good" && i%3 == 0)
	}
	assert.Greater(t, bandit.Weight("good"), bandit.Weight("bad"))
}

func TestBanditRestartRescalesWeights(t *testing.T) {
	bandit := NewBandit([]string{"a", "b"})
	bandit.restartThreshold = 50
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 200; i++ {
		idx := bandit.Select(rng, []int{0, 1})
		bandit.RecordOutcome([]string{"a", "b"}[idx], idx == 0)
	}
	k := 2.0
	for _, name := range []string{"a", "b"} {
		w := bandit.Weight(name)
		assert.GreaterOrEqual(t, w, 1.0)
		assert.LessOrEqual(t, w, 2*k)
	}
}

func TestBanditIgnoresUnknownArm(t *testing.T) {
	bandit := NewBandit([]string{"a"})
	assert.NotPanics(t, func() { bandit.RecordOutcome("missing", true) })
}

func TestDefaultGeneratorsProduceValidPrograms(t *testing.T) {
	registry := NewDefaultRegistry(nil)
	b := builder.New(rand.New(rand.NewSource(6)), registry, nil)

	for trial := 0; trial < 20; trial++ {
		err := builder.CatchInvariantViolations(func() error {
			return b.Build(15, builder.BuildByGenerating)
		})
		require.NoError(t, err, "trial %d", trial)
		p, err := b.Finalize()
		require.NoError(t, err, "trial %d", trial)
		require.NoError(t, p.Check(), "trial %d produced:\n%s", trial, p)
		assert.GreaterOrEqual(t, p.Size(), 15)
	}
}

func TestDefaultGeneratorsRespectContext(t *testing.T) {
	for _, gen := range DefaultGenerators() {
		if gen.RequiredContext.Contains(il.ContextSubroutine) ||
			gen.RequiredContext.Contains(il.ContextAsync) ||
			gen.RequiredContext.Contains(il.ContextGenerator) {
			continue
		}
		assert.True(t, gen.RequiredContext.Contains(il.ContextScript),
			"%s must at least require script context", gen.Name)
	}
}

func TestBanditWithDefaultCatalog(t *testing.T) {
	gens := DefaultGenerators()
	bandit := NewBandit(GeneratorNames(gens))
	registry := builder.NewGeneratorRegistry(gens, bandit)
	b := builder.New(rand.New(rand.NewSource(7)), registry, nil)

	require.NoError(t, b.Build(20, builder.BuildByGenerating))
	used := b.UsedGenerators()
	require.NotEmpty(t, used)
	for _, name := range used {
		bandit.RecordOutcome(name, false)
	}
	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())
}
