// Package entropy provides the random stream a simulation run draws from.
// A run consumes exactly one Source so a seed reproduces the run draw for draw.
package entropy

import (
	"math"
	"math/rand"
)

// Source is the stream of random draws consumed by a simulation.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// NormFloat64 returns a standard normal value (mean 0, stddev 1).
	NormFloat64() float64
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
}

// Seeded is a deterministic Source backed by math/rand.
type Seeded struct {
	rng   *rand.Rand
	seed  int64
	draws uint64
}

// NewSeeded creates a Source that replays the same stream for the same seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

func (s *Seeded) Float64() float64 {
	s.draws++
	return s.rng.Float64()
}

func (s *Seeded) NormFloat64() float64 {
	s.draws++
	return s.rng.NormFloat64()
}

func (s *Seeded) Intn(n int) int {
	s.draws++
	return s.rng.Intn(n)
}

// Seed returns the seed the stream was created with.
func (s *Seeded) Seed() int64 {
	return s.seed
}

// Draws returns how many values have been taken from the stream.
func (s *Seeded) Draws() uint64 {
	return s.draws
}

// Uniform returns a value in [lo, hi) from src.
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Angle returns a direction in [0, π). Only the upper half-plane is sampled.
func Angle(src Source) float64 {
	return src.Float64() * math.Pi
}

// Sample picks k distinct indices from [0, n) uniformly without replacement,
// using a partial Fisher-Yates shuffle. Callers guarantee 0 <= k <= n.
func Sample(src Source, n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + src.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
