package codegen

import (
	"math"
	"math/rand"
)

// banditArm is the per-generator state of the bandit.
type banditArm struct {
	name string

	// weight drives the exponential-weights selection probability.
	weight float64

	// invocations counts how often the arm was credited with an outcome.
	invocations int

	// iterationsSinceGrowth counts outcomes since the arm last found new
	// coverage; it is the raw cost signal.
	iterationsSinceGrowth int

	// estimatedTotalReward accumulates the importance-weighted reward
	// estimates used for epoch advancement.
	estimatedTotalReward float64

	// sum, sumOfSquares, and samples track the raw reward distribution for
	// the z-score normalization.
	sum          float64
	sumOfSquares float64
	samples      int

	// probability is the selection probability from the arm's most recent
	// selection, needed for the importance-weighted update.
	probability float64
}

// Bandit is an Exp3.1-style adversarial bandit over the generator list.
//
// Selection mixes exponential weights with uniform exploration. Rewards are
// derived from how many invocations an arm needs per coverage growth,
// normalized as a z-score against the arm's own history and squashed into
// (-1, 1). Epochs follow the Exp3.1 doubling schedule, and after a bounded
// number of trials the weights are rescaled to keep the policy adaptive.
type Bandit struct {
	arms   map[string]*banditArm
	order  []*banditArm
	gamma  float64
	epoch  int
	trials int

	// restartThreshold bounds the trials between weight rescalings.
	restartThreshold int
}

// defaultRestartThreshold is the trial count after which weights are rescaled
// into [1, 2K].
const defaultRestartThreshold = 5000

// NewBandit creates a bandit with one arm per generator name.
func NewBandit(names []string) *Bandit {
	b := &Bandit{
		arms:             make(map[string]*banditArm, len(names)),
		restartThreshold: defaultRestartThreshold,
	}
	for _, name := range names {
		arm := &banditArm{name: name, weight: 1}
		b.arms[name] = arm
		b.order = append(b.order, arm)
	}
	b.epoch = 0
	b.gamma = b.gammaForEpoch(0)
	return b
}

// gammaForEpoch computes the exploration rate of the given epoch.
func (b *Bandit) gammaForEpoch(epoch int) float64 {
	k := float64(len(b.order))
	if k < 2 {
		return 1
	}
	g := (k * math.Log(k)) / (math.E - 1) * math.Pow(4, float64(epoch))
	gamma := math.Sqrt(k * math.Log(k) / ((math.E - 1) * g))
	return math.Min(1, gamma)
}

// bestActionGuess is the reward bound that ends the given epoch.
func (b *Bandit) bestActionGuess(epoch int) float64 {
	k := float64(len(b.order))
	return (k*math.Log(k))/(math.E-1)*math.Pow(4, float64(epoch)) - k/b.gamma
}

// Select picks one eligible arm, mixing exponential weights with uniform
// exploration: p_i = (1-γ)·w_i/Σw + γ/K over the eligible arms.
func (b *Bandit) Select(rng *rand.Rand, eligible []int) int {
	total := 0.0
	for _, i := range eligible {
		total += b.order[i].weight
	}
	k := float64(len(eligible))
	probs := make([]float64, len(eligible))
	for n, i := range eligible {
		probs[n] = (1-b.gamma)*(b.order[i].weight/total) + b.gamma/k
	}
	x := rng.Float64()
	chosen := eligible[len(eligible)-1]
	chosenProb := probs[len(eligible)-1]
	for n, p := range probs {
		x -= p
		if x < 0 {
			chosen = eligible[n]
			chosenProb = p
			break
		}
	}
	b.order[chosen].probability = chosenProb
	return chosen
}

// RecordOutcome credits one invocation outcome to the named arm. newCoverage
// reports whether the program produced with this generator's help grew
// coverage.
func (b *Bandit) RecordOutcome(name string, newCoverage bool) {
	arm, ok := b.arms[name]
	if !ok {
		return
	}
	arm.invocations++
	arm.iterationsSinceGrowth++
	b.trials++
	if !newCoverage {
		if b.trials >= b.restartThreshold {
			b.restart()
		}
		return
	}

	raw := float64(arm.iterationsSinceGrowth)
	arm.iterationsSinceGrowth = 0
	arm.sum += raw
	arm.sumOfSquares += raw * raw
	arm.samples++

	reward := b.normalize(arm, raw)
	p := arm.probability
	if p <= 0 {
		p = 1 / float64(len(b.order))
	}
	estimate := reward / p
	arm.estimatedTotalReward += estimate

	k := float64(len(b.order))
	arm.weight *= math.Exp(b.gamma * estimate / k)

	b.epochAdvance()
	if b.trials >= b.restartThreshold {
		b.restart()
	}
}

// normalize converts a raw iterations-per-growth cost into a reward in
// (-1, 1): a z-score against the arm's history, negated so that fewer
// iterations score higher, squashed through a symmetric logistic.
func (b *Bandit) normalize(arm *banditArm, raw float64) float64 {
	samples := math.Max(1, float64(arm.samples))
	mean := arm.sum / samples
	variance := arm.sumOfSquares/samples - mean*mean
	stddev := math.Sqrt(math.Max(variance, 1e-9))
	z := (raw - mean) / stddev
	return math.Tanh(-z / 2)
}

// epochAdvance moves to the next epoch once the best estimated total reward
// exceeds the current epoch's bound, per the Exp3.1 schedule.
func (b *Bandit) epochAdvance() {
	maxEstimate := 0.0
	for _, arm := range b.order {
		if arm.estimatedTotalReward > maxEstimate {
			maxEstimate = arm.estimatedTotalReward
		}
	}
	if maxEstimate <= b.bestActionGuess(b.epoch) {
		return
	}
	b.epoch++
	b.gamma = b.gammaForEpoch(b.epoch)
	for _, arm := range b.order {
		arm.estimatedTotalReward = 0
	}
}

// restart rescales the weights into [1, 2K] and resets the reward statistics,
// bounding how long an early lead can dominate selection.
func (b *Bandit) restart() {
	b.trials = 0
	minW, maxW := math.Inf(1), math.Inf(-1)
	for _, arm := range b.order {
		minW = math.Min(minW, arm.weight)
		maxW = math.Max(maxW, arm.weight)
	}
	span := maxW - minW
	k := float64(len(b.order))
	for _, arm := range b.order {
		if span > 0 {
			arm.weight = 1 + (arm.weight-minW)/span*(2*k-1)
		} else {
			arm.weight = 1
		}
		arm.estimatedTotalReward = 0
		arm.sum = 0
		arm.sumOfSquares = 0
		arm.samples = 0
		arm.iterationsSinceGrowth = 0
	}
}

// Weight returns the current weight of the named arm, for statistics.
func (b *Bandit) Weight(name string) float64 {
	if arm, ok := b.arms[name]; ok {
		return arm.weight
	}
	return 0
}

// Epoch returns the current epoch number.
func (b *Bandit) Epoch() int { return b.epoch }
