package estimate

import (
	"testing"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewBase(t *testing.T) {
	assert := assert.New(t)

	val := mat.NewVecDense(2, []float64{1.0, 1.0})
	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})

	b, err := NewBase(val)
	assert.NotNil(b)
	assert.NoError(err)

	b, err = NewBase(nil)
	assert.Nil(b)
	assert.Error(err)

	b, err = NewBaseWithCov(val, cov)
	assert.NotNil(b)
	assert.NoError(err)

	b, err = NewBaseWithCov(val, mat.NewSymDense(1, []float64{1.0}))
	assert.Nil(b)
	assert.Error(err)
}

func TestValCov(t *testing.T) {
	assert := assert.New(t)

	val := mat.NewVecDense(2, []float64{1.0, 2.0})
	cov := mat.NewSymDense(2, []float64{1.0, 2.0, 2.0, 4.0})

	b, err := NewBaseWithCov(val, cov)
	assert.NoError(err)

	assert.True(mat.Equal(val, b.Val()))
	assert.True(mat.Equal(cov, b.Cov()))
	assert.Equal(perceive.Point{X: 1, Y: 2}, b.Point())

	// modifying returned values does not modify the estimate
	v := b.Val().(*mat.VecDense)
	v.SetVec(0, 100)
	assert.Equal(1.0, b.Val().AtVec(0))
}

func TestFromCloud(t *testing.T) {
	assert := assert.New(t)

	b, err := FromCloud(perceive.Cloud{})
	assert.Nil(b)
	assert.Error(err)

	b, err = FromCloud(perceive.Cloud{
		Points:  []perceive.Point{{X: 1, Y: 1}},
		Weights: []float64{0.5, 0.5},
	})
	assert.Nil(b)
	assert.Error(err)

	b, err = FromCloud(perceive.Cloud{
		Points:  []perceive.Point{{X: 1, Y: 1}, {X: 3, Y: 1}},
		Weights: []float64{0, 0},
	})
	assert.Nil(b)
	assert.Error(err)

	// weights pull the mean towards the heavier point
	b, err = FromCloud(perceive.Cloud{
		Points:  []perceive.Point{{X: 0, Y: 0}, {X: 4, Y: 0}},
		Weights: []float64{0.75, 0.25},
	})
	assert.NoError(err)
	assert.InDelta(1.0, b.Point().X, 1e-9)
	assert.InDelta(0.0, b.Point().Y, 1e-9)
	assert.True(b.Cov().At(0, 0) > 0)
	assert.InDelta(0.0, b.Cov().At(1, 1), 1e-9)

	// nil weights are uniform
	b, err = FromCloud(perceive.Cloud{
		Points: []perceive.Point{{X: 0, Y: 2}, {X: 2, Y: 4}},
	})
	assert.NoError(err)
	assert.InDelta(1.0, b.Point().X, 1e-9)
	assert.InDelta(3.0, b.Point().Y, 1e-9)
	assert.InDelta(2.0, b.Cov().At(0, 0), 1e-9)
	assert.InDelta(2.0, b.Cov().At(0, 1), 1e-9)

	// single point has zero covariance
	b, err = FromCloud(perceive.Cloud{Points: []perceive.Point{{X: 5, Y: 5}}})
	assert.NoError(err)
	assert.Equal(0.0, b.Cov().At(0, 0))
}
