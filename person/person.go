// Package person implements a particle filter tracking the position of a person
// from binary RFID readings taken by one or more robots.
package person

import (
	"fmt"
	"math"

	"github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/entropy"
	"github.com/milosgajdos/go-perceive/estimate"
	"github.com/milosgajdos/go-perceive/grid"
	"github.com/milosgajdos/go-perceive/particle"
	"github.com/milosgajdos/go-perceive/rand"
	"github.com/milosgajdos/go-perceive/sensor"
)

const (
	// DefaultNumParticles is the default number of person particles
	DefaultNumParticles = 5000
	// DefaultSigma is the default person diffusion standard deviation
	DefaultSigma = 0.05
	// DefaultProjectRadius is the default search radius in cells for re-projecting particles into free space
	DefaultProjectRadius = 3
)

// Config configures person filter.
type Config struct {
	// Map is the occupancy map; it can be set later with SetMap
	Map *grid.Map
	// Field is the sensor likelihood field
	Field *sensor.Field
	// NumParticles is the number of particles
	NumParticles int
	// Sigma is the diffusion standard deviation per sqrt(second)
	Sigma float64
	// EntropyResolution is the histogram bin size; zero uses map resolution
	EntropyResolution float64
	// RandomFraction is the fraction of particles redrawn from free space after resampling
	RandomFraction float64
	// ProjectRadius is the search radius in cells used to move particles back into free space
	ProjectRadius int
	// Resampling selects the resampling draw
	Resampling particle.Resampling
	// Src is the random source; nil seeds a new source from the current time
	Src *rand.Source
	// Logger logs filter anomalies; nil uses the standard logger
	Logger logrus.FieldLogger
}

// Observation is a single robot sensor observation
type Observation struct {
	// Index is the index of the observing robot; robot 0 is the controlled robot
	Index int
	// Reading is true if the sensor detected the person
	Reading bool
	// Robot is the robot pose at the time of the reading
	Robot perceive.Pose
	// Cloud is the robot pose belief; when not empty it's used instead of Robot
	Cloud []perceive.Pose
}

// Filter tracks the position of a person.
type Filter struct {
	pf     *particle.Filter[perceive.Point]
	m      *grid.Map
	field  *sensor.Field
	sigma  float64
	res    float64
	frac   float64
	radius int
	src    *rand.Source
	log    logrus.FieldLogger
}

// New creates new person filter from c and returns it.
// It returns error if c is invalid.
func New(c Config) (*Filter, error) {
	if c.Field == nil {
		return nil, errors.Wrap(perceive.ErrSensorModelLoad, "missing likelihood field")
	}

	if c.NumParticles == 0 {
		c.NumParticles = DefaultNumParticles
	}

	if !(c.Sigma >= 0) {
		return nil, fmt.Errorf("invalid person sigma: %f", c.Sigma)
	}

	if !(c.EntropyResolution >= 0) {
		return nil, fmt.Errorf("invalid entropy resolution: %f", c.EntropyResolution)
	}

	if !(c.RandomFraction >= 0 && c.RandomFraction <= 1) {
		return nil, fmt.Errorf("invalid random fraction: %f", c.RandomFraction)
	}

	if c.ProjectRadius <= 0 {
		c.ProjectRadius = DefaultProjectRadius
	}

	if c.Src == nil {
		c.Src = rand.NewTime()
	}

	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}

	f := &Filter{
		m:      c.Map,
		field:  c.Field,
		sigma:  c.Sigma,
		res:    c.EntropyResolution,
		frac:   c.RandomFraction,
		radius: c.ProjectRadius,
		src:    c.Src,
		log:    c.Logger,
	}

	pf, err := particle.New(c.NumParticles, f.prior, f.diffuse)
	if err != nil {
		return nil, err
	}
	pf.SetResampling(c.Resampling)
	f.pf = pf

	return f, nil
}

// SetMap sets the occupancy map.
func (f *Filter) SetMap(m *grid.Map) {
	f.m = m
}

// Map returns the occupancy map.
func (f *Filter) Map() *grid.Map {
	return f.m
}

// Field returns the sensor likelihood field.
func (f *Filter) Field() *sensor.Field {
	return f.field
}

// prior draws a particle uniformly from the free space.
func (f *Filter) prior(src *rand.Source) (perceive.Point, error) {
	if f.m == nil {
		return perceive.Point{}, errors.Wrap(perceive.ErrMapUnavailable, "map not set")
	}

	return f.m.SampleFree(src)
}

// diffuse moves p by isotropic Gaussian noise with standard deviation sigma*sqrt(dt).
func (f *Filter) diffuse(src *rand.Source, p perceive.Point, dt float64) perceive.Point {
	if dt <= 0 {
		return p
	}

	s := f.sigma * math.Sqrt(dt)
	next := perceive.Point{
		X: p.X + src.Normal(s),
		Y: p.Y + src.Normal(s),
	}

	return f.project(src, next)
}

// project moves p into free space: to the nearest free cell within the search radius,
// or to a uniformly drawn free position if there is none.
func (f *Filter) project(src *rand.Source, p perceive.Point) perceive.Point {
	if f.m == nil || f.m.IsFree(p) {
		return p
	}

	if q, ok := f.m.Nearest(p, f.radius); ok {
		return q
	}

	if q, err := f.m.SampleFree(src); err == nil {
		return q
	}

	return p
}

// InitUniform draws all particles uniformly from the map free space.
// It returns ErrMapUnavailable if no map with free space has been set.
func (f *Filter) InitUniform() error {
	return f.pf.InitUniform(f.src)
}

// InitFromParticles seeds the filter by resampling from cloud.
// It returns error if cloud is empty or its weights do not match its points.
func (f *Filter) InitFromParticles(cloud perceive.Cloud) error {
	return f.pf.InitFrom(f.src, cloud.Points, cloud.Weights)
}

// Predict diffuses every particle for dt seconds.
func (f *Filter) Predict(dt float64) {
	f.pf.Predict(f.src, dt)
}

// Update multiplies every particle weight by the likelihood of all observations.
// Weights are not normalized.
func (f *Filter) Update(obs ...Observation) {
	if len(obs) == 0 {
		return
	}

	f.pf.Update(func(p perceive.Point) float64 {
		return f.Likelihood(p, obs...)
	})
}

// Likelihood returns joint likelihood of obs given the person is at p.
func (f *Filter) Likelihood(p perceive.Point, obs ...Observation) float64 {
	l := 1.0
	for _, o := range obs {
		if len(o.Cloud) > 0 {
			l *= f.field.CloudLikelihood(p, o.Cloud, o.Reading)
			continue
		}
		l *= f.field.Likelihood(p, o.Robot, o.Reading)
	}

	return l
}

// Resample normalizes the particle weights and resamples the particles.
// Degenerate weights are logged and the particles are resampled uniformly.
// Afterwards the configured fraction of particles is redrawn from free space.
func (f *Filter) Resample() error {
	if err := f.pf.Normalize(); err != nil {
		if !errors.Is(err, perceive.ErrDegenerateWeights) {
			return err
		}
		f.log.WithError(err).Warn("resampling person particles uniformly")
	}

	if err := f.pf.Resample(f.src); err != nil {
		return errors.Wrap(err, "failed to resample person particles")
	}

	if f.frac > 0 {
		if err := f.pf.Inject(f.src, f.frac); err != nil {
			return errors.Wrap(err, "failed to inject person particles")
		}
	}

	return nil
}

// Regularize perturbs the particles with Gaussian noise whose covariance is the particle
// covariance scaled by alpha. Non-positive alpha uses the optimal Gaussian kernel bandwidth.
// Perturbed particles are moved back into free space.
func (f *Filter) Regularize(alpha float64) error {
	n := f.pf.Len()
	x := mat.NewDense(2, n, nil)
	for i, p := range f.pf.States() {
		x.Set(0, i, p.X)
		x.Set(1, i, p.Y)
	}

	cov, err := matrix.Cov(x, "cols")
	if err != nil {
		return fmt.Errorf("failed to calculate covariance matrix: %v", err)
	}

	m, err := rand.WithCovN(f.src, cov, n)
	if err != nil {
		return fmt.Errorf("failed to draw random particle perturbations: %v", err)
	}

	if alpha <= 0 {
		alpha = particle.AlphaGauss(2, n)
	}
	m.Scale(alpha, m)

	f.log.WithFields(logrus.Fields{
		"alpha": alpha,
		"cov":   fmt.Sprintf("%v", matrix.Format(cov)),
	}).Debug("regularizing person particles")

	f.pf.Transform(func(i int, p perceive.Point) perceive.Point {
		return f.project(f.src, perceive.Point{X: p.X + m.At(0, i), Y: p.Y + m.At(1, i)})
	})

	return nil
}

// Resolution returns the entropy histogram bin size and the origin the bins are aligned with.
// Zero bin size means the resolution is unknown.
func (f *Filter) Resolution() (float64, perceive.Point) {
	res := f.res
	var origin perceive.Point
	if f.m != nil {
		origin = f.m.Origin()
		if res == 0 {
			res = f.m.Resolution()
		}
	}

	return res, origin
}

// EntropyParticles returns Shannon entropy of the particle histogram.
// It returns error if the histogram resolution is unknown or the weights are degenerate.
func (f *Filter) EntropyParticles() (float64, error) {
	res, origin := f.Resolution()
	return entropy.Histogram(f.Cloud(), origin, res)
}

// EntropyGMM returns differential entropy of a Gaussian mixture fitted to the particles.
// It returns error if the histogram resolution is unknown or the weights are degenerate.
func (f *Filter) EntropyGMM() (float64, error) {
	res, origin := f.Resolution()
	return entropy.GMM(f.Cloud(), origin, res)
}

// Cloud returns a copy of the particle positions and weights.
func (f *Filter) Cloud() perceive.Cloud {
	return perceive.Cloud{
		Points:  f.pf.States(),
		Weights: f.pf.Weights(),
	}
}

// Estimate returns the weighted mean and covariance of the particles.
func (f *Filter) Estimate() (*estimate.Base, error) {
	return estimate.FromCloud(f.Cloud())
}

// Particle returns i-th particle.
// It returns ErrIndexOutOfRange if i is out of range.
func (f *Filter) Particle(i int) (particle.Particle[perceive.Point], error) {
	return f.pf.Particle(i)
}

// Len returns the number of particles.
func (f *Filter) Len() int {
	return f.pf.Len()
}

// EffectiveSize returns the effective sample size of the particles.
func (f *Filter) EffectiveSize() float64 {
	return f.pf.EffectiveSize()
}
