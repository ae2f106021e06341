package rand

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Source is a seeded pseudo-random number generator.
// Source is not safe for concurrent use: use Split to derive
// independent sources for concurrent workers.
type Source struct {
	// seed is the seed the source was created with
	seed uint64
	// rnd generates the random numbers
	rnd *rand.Rand
}

// New creates new Source seeded with seed and returns it.
func New(seed uint64) *Source {
	return &Source{
		seed: seed,
		rnd:  rand.New(rand.NewSource(seed)),
	}
}

// NewTime creates new Source seeded from the current time.
func NewTime() *Source {
	return New(uint64(time.Now().UnixNano()))
}

// Seed returns the seed of the source.
func (s *Source) Seed() uint64 {
	return s.seed
}

// Rand returns the underlying generator so it can be plugged into gonum distributions.
func (s *Source) Rand() *rand.Rand {
	return s.rnd
}

// Split derives a new independent source from s.
func (s *Source) Split() *Source {
	return New(s.rnd.Uint64())
}

// Float64 returns a uniform sample from [0,1).
func (s *Source) Float64() float64 {
	return s.rnd.Float64()
}

// Intn returns a uniform sample from [0,n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	return s.rnd.Intn(n)
}

// Uniform returns a uniform sample from [min,max).
func (s *Source) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return distuv.Uniform{Min: min, Max: max, Src: s.rnd}.Rand()
}

// Normal returns a sample from zero-mean Normal distribution with standard deviation sigma.
// Non-positive sigma returns 0.
func (s *Source) Normal(sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: s.rnd}.Rand()
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(src *Source, cov mat.Symmetric, n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	U.Mul(U, mat.NewDiagDense(len(vals), vals))

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = src.rnd.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into p.
// It fails with error if p is empty or its weights do not sum up to a positive number.
func RouletteDrawN(src *Source, p []float64, n int) ([]int, error) {
	cdf, err := cumSum(p)
	if err != nil {
		return nil, err
	}

	total := cdf[len(cdf)-1]
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val := src.rnd.Float64() * total
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices, nil
}

// SystematicDrawN draws n indices from a PMF defined by weights in p using systematic resampling:
// a single uniform offset u in [0, 1/n) selects the indices at u, u+1/n, ... u+(n-1)/n of the CDF.
// It has lower variance than RouletteDrawN and returns the indices in ascending order.
// It fails with error if p is empty or its weights do not sum up to a positive number.
func SystematicDrawN(src *Source, p []float64, n int) ([]int, error) {
	cdf, err := cumSum(p)
	if err != nil {
		return nil, err
	}

	total := cdf[len(cdf)-1]
	step := total / float64(n)
	u := src.rnd.Float64() * step

	indices := make([]int, n)
	j := 0
	for i := range indices {
		target := u + float64(i)*step
		for j < len(cdf)-1 && cdf[j] <= target {
			j++
		}
		indices[i] = j
	}

	return indices, nil
}

func cumSum(p []float64) ([]float64, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	if total := cdf[len(cdf)-1]; !(total > 0) || math.IsInf(total, 1) {
		return nil, fmt.Errorf("invalid probability weights sum: %f", total)
	}

	return cdf, nil
}
