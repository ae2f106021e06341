package particle

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/rand"
)

// Filter is a particle filter over states S.
// Particles are stored by value in two buffers: resampling writes the new
// generation into the spare buffer and swaps the two.
// Filter is not safe for concurrent use.
type Filter[S any] struct {
	// prior draws initial particle states
	prior Prior[S]
	// transition propagates particle states
	transition Transition[S]
	// p stores the current particle generation
	p []Particle[S]
	// buf is the spare particle buffer
	buf []Particle[S]
	// w is scratch space for resampling weights
	w []float64
	// resampling selects the resampling draw
	resampling Resampling
}

// New creates new particle filter with n particles and returns it.
// The particles are zero-valued until the filter is initialized with InitUniform or InitFrom.
// It returns error if n is not positive or if prior or transition are nil.
func New[S any](n int, prior Prior[S], transition Transition[S]) (*Filter[S], error) {
	// must have at least one particle; can't be negative
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}

	if prior == nil {
		return nil, fmt.Errorf("invalid prior: %v", prior)
	}

	if transition == nil {
		return nil, fmt.Errorf("invalid transition: %v", transition)
	}

	p := make([]Particle[S], n)
	for i := range p {
		p[i].Weight = 1 / float64(n)
	}

	return &Filter[S]{
		prior:      prior,
		transition: transition,
		p:          p,
		buf:        make([]Particle[S], n),
		w:          make([]float64, n),
	}, nil
}

// InitUniform draws all particle states from the prior and resets their weights to 1/N.
// It returns error if the prior fails to draw a state.
func (f *Filter[S]) InitUniform(src *rand.Source) error {
	for i := range f.buf {
		s, err := f.prior(src)
		if err != nil {
			return errors.Wrap(err, "failed to draw prior particle")
		}
		f.buf[i] = Particle[S]{State: s, Weight: 1 / float64(len(f.buf))}
	}

	f.swap()

	return nil
}

// InitFrom seeds the filter by resampling N particles from an external weighted state set.
// Nil weights are treated as uniform. All-zero weights fall back to uniform selection.
// It returns error if states is empty or the number of weights does not match the number of states.
func (f *Filter[S]) InitFrom(src *rand.Source, states []S, weights []float64) error {
	if len(states) == 0 {
		return fmt.Errorf("invalid state count: %d", len(states))
	}

	if weights == nil {
		weights = make([]float64, len(states))
		for i := range weights {
			weights[i] = 1
		}
	}

	if len(weights) != len(states) {
		return fmt.Errorf("invalid weight count: %d, expected: %d", len(weights), len(states))
	}

	indices, err := f.draw(src, weights, len(f.p))
	if err != nil {
		return err
	}

	for i, idx := range indices {
		f.buf[i] = Particle[S]{State: states[idx], Weight: 1 / float64(len(f.buf))}
	}

	f.swap()

	return nil
}

// Predict propagates all particles by dt seconds. Weights are unchanged.
func (f *Filter[S]) Predict(src *rand.Source, dt float64) {
	for i := range f.p {
		f.p[i].State = f.transition(src, f.p[i].State, dt)
	}
}

// Update multiplies every particle weight by the likelihood of its state.
// Negative and NaN likelihoods are treated as zero. Weights are not normalized.
func (f *Filter[S]) Update(l Likelihood[S]) {
	for i := range f.p {
		lik := l(f.p[i].State)
		if !(lik > 0) {
			lik = 0
		}
		f.p[i].Weight *= lik
	}
}

// Normalize scales particle weights so they sum up to 1.
// It returns ErrDegenerateWeights and leaves the weights untouched if they do not sum up to a positive finite number.
func (f *Filter[S]) Normalize() error {
	w := f.weights()
	sum := floats.Sum(w)
	if !(sum > 0) || floats.HasNaN(w) || sum > maxSum {
		return errors.Wrapf(perceive.ErrDegenerateWeights, "weight sum: %f", sum)
	}

	for i := range f.p {
		f.p[i].Weight /= sum
	}

	return nil
}

// SetResampling sets the resampling draw. Systematic is the default.
func (f *Filter[S]) SetResampling(r Resampling) {
	f.resampling = r
}

// Resampling returns the resampling draw.
func (f *Filter[S]) Resampling() Resampling {
	return f.resampling
}

// Resample replaces the particles with N particles drawn with replacement
// proportionally to their weights using the configured resampling draw.
// If the weights are degenerate the particles are drawn uniformly.
// All weights are reset to 1/N.
func (f *Filter[S]) Resample(src *rand.Source) error {
	indices, err := f.draw(src, f.weights(), len(f.p))
	if err != nil {
		return err
	}

	for i, idx := range indices {
		f.buf[i] = Particle[S]{State: f.p[idx].State, Weight: 1 / float64(len(f.buf))}
	}

	f.swap()

	return nil
}

// Inject replaces a random frac of particles with fresh draws from the prior.
// Injected particles get the mean particle weight so the weight sum is preserved.
// It returns error if frac is outside [0,1] or the prior fails.
func (f *Filter[S]) Inject(src *rand.Source, frac float64) error {
	if !(frac >= 0 && frac <= 1) {
		return fmt.Errorf("invalid injection fraction: %f", frac)
	}

	n := int(frac * float64(len(f.p)))
	if n == 0 {
		return nil
	}

	mean := floats.Sum(f.weights()) / float64(len(f.p))
	for k := 0; k < n; k++ {
		s, err := f.prior(src)
		if err != nil {
			return errors.Wrap(err, "failed to draw prior particle")
		}
		f.p[src.Intn(len(f.p))] = Particle[S]{State: s, Weight: mean}
	}

	return nil
}

// Transform replaces every particle state with fn applied to it.
func (f *Filter[S]) Transform(fn func(i int, s S) S) {
	for i := range f.p {
		f.p[i].State = fn(i, f.p[i].State)
	}
}

// Particle returns i-th particle.
// It returns ErrIndexOutOfRange if i is out of range.
func (f *Filter[S]) Particle(i int) (Particle[S], error) {
	if i < 0 || i >= len(f.p) {
		return Particle[S]{}, errors.Wrapf(perceive.ErrIndexOutOfRange, "particle %d of %d", i, len(f.p))
	}

	return f.p[i], nil
}

// Len returns the number of particles.
func (f *Filter[S]) Len() int {
	return len(f.p)
}

// Weights returns a copy of particle weights.
func (f *Filter[S]) Weights() []float64 {
	w := make([]float64, len(f.p))
	copy(w, f.weights())

	return w
}

// States returns a copy of particle states.
func (f *Filter[S]) States() []S {
	s := make([]S, len(f.p))
	for i := range f.p {
		s[i] = f.p[i].State
	}

	return s
}

// EffectiveSize returns the effective sample size of the particle set: 1/Σw² of the normalized weights.
// It returns 0 for degenerate weights.
func (f *Filter[S]) EffectiveSize() float64 {
	w := f.weights()
	sum := floats.Sum(w)
	if !(sum > 0) {
		return 0
	}

	sq := 0.0
	for _, v := range w {
		sq += (v / sum) * (v / sum)
	}

	return 1 / sq
}

// weights copies particle weights into the scratch buffer and returns it.
func (f *Filter[S]) weights() []float64 {
	for i := range f.p {
		f.w[i] = f.p[i].Weight
	}

	return f.w
}

func (f *Filter[S]) swap() {
	f.p, f.buf = f.buf, f.p
}

// maxSum guards against overflowing weight sums
const maxSum = 1e300

// draw draws n indices into w using the configured resampling.
// It falls back to uniform indices if w are degenerate.
func (f *Filter[S]) draw(src *rand.Source, w []float64, n int) ([]int, error) {
	sum := floats.Sum(w)
	if sum > 0 && sum <= maxSum && !floats.HasNaN(w) {
		if f.resampling == Multinomial {
			return rand.RouletteDrawN(src, w, n)
		}
		return rand.SystematicDrawN(src, w, n)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = src.Intn(len(w))
	}

	return indices, nil
}
