package terrain

import "math/rand/v2"

// Picker makes seeded weighted variant choices. Each Picker owns its random
// stream, so two pickers never perturb each other's sequence.
type Picker struct {
	rng   *rand.Rand
	calls int
}

// NewPicker returns a picker whose stream is fully determined by seed and stream.
func NewPicker(seed int64, stream uint64) *Picker {
	return &Picker{
		rng: rand.New(rand.NewPCG(uint64(seed), stream)),
	}
}

// Pick returns an index in [0, n). With probability biasKeep it returns 0;
// otherwise it returns a uniform index over all n, which may again be 0.
// Pick returns -1 when n <= 0.
func (p *Picker) Pick(n int, biasKeep float64) int {
	p.calls++
	if n <= 0 {
		return -1
	}
	if p.rng.Float64() < biasKeep {
		return 0
	}
	return p.rng.IntN(n)
}

// Chance reports true with probability prob.
func (p *Picker) Chance(prob float64) bool {
	p.calls++
	return p.rng.Float64() < prob
}

// Calls returns how many Pick and Chance calls the picker has served.
func (p *Picker) Calls() int {
	return p.calls
}

// Pick selects a variant with the picker's biased rule.
// The zero value is returned for an empty slice.
func Pick[T any](p *Picker, variants []T, biasKeep float64) T {
	i := p.Pick(len(variants), biasKeep)
	if i < 0 {
		var zero T
		return zero
	}
	return variants[i]
}
