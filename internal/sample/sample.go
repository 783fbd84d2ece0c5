// Package sample draws headline subsets for an evaluation run.
package sample

import (
	"math/rand/v2"
	"slices"
)

// Sampler draws uniform subsets without replacement
type Sampler struct {
	rng *rand.Rand
}

// New creates a sampler. A zero seed draws fresh randomness on every run;
// any other seed makes the draw reproducible.
func New(seed int64) *Sampler {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	}
	return &Sampler{rng: rand.New(src)}
}

// Indices returns n distinct row indices drawn from candidates, keeping each
// row's original identity. When n >= len(candidates) every candidate is
// returned. The result is in draw order.
func (s *Sampler) Indices(candidates []int, n int) []int {
	pool := slices.Clone(candidates)
	if n >= len(pool) {
		s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		return pool
	}
	if n <= 0 {
		return []int{}
	}

	// Partial Fisher-Yates: the first n slots end up uniformly chosen
	for i := 0; i < n; i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
