package estimate

import (
	"fmt"

	perceive "github.com/milosgajdos/go-perceive"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Base is base estimate
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

var _ perceive.Estimate = (*Base)(nil)

// NewBase returns base estimate given val
func NewBase(val mat.Vector) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("invalid estimate value")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	return &Base{
		val: v,
		cov: mat.NewSymDense(v.Len(), nil),
	}, nil
}

// NewBaseWithCov returns base estimate given value and covariance
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil {
		return nil, fmt.Errorf("invalid estimate value or covariance")
	}

	if val.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", val.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// FromCloud returns the weighted mean and covariance of the points in cloud.
// Nil weights are treated as uniform weights.
// It returns error if the cloud is empty or its weights are invalid.
func FromCloud(cloud perceive.Cloud) (*Base, error) {
	n := cloud.Len()
	if n == 0 {
		return nil, fmt.Errorf("empty cloud")
	}

	w := cloud.Weights
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}

	if len(w) != n {
		return nil, fmt.Errorf("invalid weights count: %d, points: %d", len(w), n)
	}

	sum := floats.Sum(w)
	if !(sum > 0) {
		return nil, fmt.Errorf("invalid weights sum: %f", sum)
	}

	data := mat.NewDense(n, 2, nil)
	for i, p := range cloud.Points {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
	}

	mean := mat.NewVecDense(2, []float64{
		stat.Mean(mat.Col(nil, 0, data), w),
		stat.Mean(mat.Col(nil, 1, data), w),
	})

	cov := mat.NewSymDense(2, nil)
	if n > 1 {
		// stat.CovarianceMatrix normalizes by sum(w)-1: rescale weights to sum up to n
		scaled := make([]float64, n)
		floats.ScaleTo(scaled, float64(n)/sum, w)
		stat.CovarianceMatrix(cov, data, scaled)
	}

	return NewBaseWithCov(mean, cov)
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Point returns the estimated value as a map position.
// It returns zero point if the estimate has fewer than 2 dimensions.
func (b *Base) Point() perceive.Point {
	if b.val.Len() < 2 {
		return perceive.Point{}
	}

	return perceive.Point{X: b.val.AtVec(0), Y: b.val.AtVec(1)}
}
