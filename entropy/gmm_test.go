package entropy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/rand"
)

func TestFit(t *testing.T) {
	assert := assert.New(t)

	cloud := perceive.Cloud{
		Points:  []perceive.Point{{X: 0.2, Y: 0.5}, {X: 0.6, Y: 0.5}, {X: 5.5, Y: 5.5}},
		Weights: []float64{1, 1, 2},
	}

	m, err := Fit(cloud, perceive.Point{}, 1)
	require.NoError(t, err)
	require.Len(t, m.Components, 2)

	c := m.Components[0]
	assert.InDelta(0.5, c.Weight, 1e-12)
	assert.InDelta(0.4, c.Mean.X, 1e-12)
	assert.InDelta(0.5, c.Mean.Y, 1e-12)
	assert.InDelta(0.04+1.0/12, c.Cov.At(0, 0), 1e-12)
	assert.InDelta(1.0/12, c.Cov.At(1, 1), 1e-12)
	assert.InDelta(0, c.Cov.At(0, 1), 1e-12)

	c = m.Components[1]
	assert.InDelta(0.5, c.Weight, 1e-12)
	assert.Equal(perceive.Point{X: 5.5, Y: 5.5}, c.Mean)

	_, err = Fit(cloud, perceive.Point{}, -1)
	assert.Error(err)

	_, err = Fit(perceive.Cloud{}, perceive.Point{}, 1)
	assert.Error(err)
}

func TestMixtureEntropy(t *testing.T) {
	assert := assert.New(t)

	sigma2 := 0.25
	single := &Mixture{Components: []Component{{
		Weight: 1,
		Cov:    mat.NewSymDense(2, []float64{sigma2, 0, 0, sigma2}),
	}}}

	// -log N(μ; μ, 2Σ)
	exp := math.Log(2*math.Pi) + 0.5*math.Log(4*sigma2*sigma2)
	h, err := single.Entropy()
	assert.NoError(err)
	assert.InDelta(exp, h, 1e-9)

	// the bound never exceeds the true entropy of a Gaussian
	upper, err := single.UpperBound()
	assert.NoError(err)
	assert.InDelta(1+math.Log(2*math.Pi)+0.5*math.Log(sigma2*sigma2), upper, 1e-9)
	assert.True(h < upper)

	// two distant equal components add log 2
	double := &Mixture{Components: []Component{
		{Weight: 0.5, Mean: perceive.Point{X: -50}, Cov: mat.NewSymDense(2, []float64{sigma2, 0, 0, sigma2})},
		{Weight: 0.5, Mean: perceive.Point{X: 50}, Cov: mat.NewSymDense(2, []float64{sigma2, 0, 0, sigma2})},
	}}
	h2, err := double.Entropy()
	assert.NoError(err)
	assert.InDelta(h+math.Log(2), h2, 1e-9)

	_, err = (&Mixture{}).Entropy()
	assert.Error(err)

	_, err = (&Mixture{}).UpperBound()
	assert.Error(err)

	bad := &Mixture{Components: []Component{{Weight: 1, Cov: mat.NewSymDense(2, []float64{-1, 0, 0, -1})}}}
	_, err = bad.Entropy()
	assert.Error(err)
}

func TestGMMConcentration(t *testing.T) {
	assert := assert.New(t)

	src := rand.New(11)
	spread := perceive.Cloud{Points: make([]perceive.Point, 500)}
	tight := perceive.Cloud{Points: make([]perceive.Point, 500)}
	for i := range spread.Points {
		spread.Points[i] = perceive.Point{X: src.Uniform(0, 10), Y: src.Uniform(0, 10)}
		tight.Points[i] = perceive.Point{X: 5 + src.Normal(0.1), Y: 5 + src.Normal(0.1)}
	}

	hs, err := GMM(spread, perceive.Point{}, 1)
	assert.NoError(err)
	ht, err := GMM(tight, perceive.Point{}, 1)
	assert.NoError(err)
	assert.True(ht < hs)

	// the spread cloud is close to a uniform distribution over 100 m²
	assert.InDelta(math.Log(100), hs, 0.5)
}
