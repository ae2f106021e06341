// Package particle implements a generic Sequential Importance Resampling particle filter.
package particle

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-perceive/rand"
)

// Particle is a single weighted hypothesis of state S
type Particle[S any] struct {
	// State is particle payload
	State S
	// Weight is particle importance weight
	Weight float64
}

// Prior draws a state from the prior distribution.
type Prior[S any] func(src *rand.Source) (S, error)

// Transition moves state s forward by dt seconds.
type Transition[S any] func(src *rand.Source, s S, dt float64) S

// Likelihood returns the observation likelihood of state s.
type Likelihood[S any] func(s S) float64

// Resampling selects how particles are drawn when resampling
type Resampling int

const (
	// Systematic draws all particles with a single random offset
	Systematic Resampling = iota
	// Multinomial draws every particle independently
	Multinomial
)

// ParseResampling parses "systematic" or "multinomial".
func ParseResampling(s string) (Resampling, error) {
	switch s {
	case "", "systematic":
		return Systematic, nil
	case "multinomial":
		return Multinomial, nil
	default:
		return Systematic, fmt.Errorf("invalid resampling: %q", s)
	}
}

// String implements fmt.Stringer
func (r Resampling) String() string {
	if r == Multinomial {
		return "multinomial"
	}
	return "systematic"
}

// AlphaGauss computes optimal regularization parameter for Gaussian kernel
// for n particles of dimension dim and returns it.
func AlphaGauss(dim, n int) float64 {
	return math.Pow(4.0/(float64(n)*(float64(dim)+2.0)), 1/(float64(dim)+4.0))
}
