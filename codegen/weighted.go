// Package codegen provides the default code generator catalog and the
// policies that select among generators: a static weighted list and an
// adversarial multi-armed bandit.
package codegen

import "math/rand"

// WeightedList selects among arms with fixed relative weights.
type WeightedList struct {
	weights []float64
}

// NewWeightedList creates a policy over the given per-arm weights. Weights
// must be positive.
func NewWeightedList(weights []float64) *WeightedList {
	w := make([]float64, len(weights))
	copy(w, weights)
	return &WeightedList{weights: w}
}

// NewUniformList creates a policy giving n arms equal weight.
func NewUniformList(n int) *WeightedList {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return &WeightedList{weights: w}
}

// Select picks one of the eligible arms with probability proportional to its
// weight.
func (l *WeightedList) Select(rng *rand.Rand, eligible []int) int {
	total := 0.0
	for _, i := range eligible {
		total += l.weights[i]
	}
	x := rng.Float64() * total
	for _, i := range eligible {
		x -= l.weights[i]
		if x < 0 {
			return i
		}
	}
	return eligible[len(eligible)-1]
}
