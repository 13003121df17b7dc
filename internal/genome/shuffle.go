package genome

import "math/rand/v2"

// NewRand returns the deterministic generator used for every seeded step.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Shuffle returns a uniformly random permutation of p. The same seed yields
// the same order; p itself is not modified.
func Shuffle(p Pool, seed uint64) Pool {
	out := make(Pool, len(p))
	copy(out, p)
	r := NewRand(seed)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
