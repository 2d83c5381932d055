// Package sample implements the probabilistic admission gate.
//
// An event with sample rate N is admitted with probability 1/N. The random
// source is injectable so tests can pin the decision.
package sample

import (
	"math/rand"
)

// Sampler decides whether an event at a given sample rate is admitted.
type Sampler struct {
	uniform func() float64
}

// New creates a Sampler backed by the shared math/rand source, which is
// safe for concurrent use.
func New() *Sampler {
	return &Sampler{uniform: rand.Float64}
}

// NewWithSource creates a Sampler drawing from the given uniform [0,1)
// source. A nil source falls back to math/rand.
func NewWithSource(uniform func() float64) *Sampler {
	if uniform == nil {
		return New()
	}
	return &Sampler{uniform: uniform}
}

// ShouldKeep reports whether an event at the given rate is admitted.
// Rates of 0 and 1 admit everything.
func (s *Sampler) ShouldKeep(rate uint) bool {
	if rate <= 1 {
		return true
	}
	return s.uniform() < 1.0/float64(rate)
}
