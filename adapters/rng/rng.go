package rng

import (
	"math/rand"
)

// Source implements ports.RNGPort with math/rand sources
type Source struct{}

// New creates a seeded RNG source
func New() *Source {
	return &Source{}
}

// SeededStream returns a generator seeded exactly with seed
func (s *Source) SeededStream(name string, seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
