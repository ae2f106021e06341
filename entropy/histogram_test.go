package entropy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	perceive "github.com/milosgajdos/go-perceive"
)

func TestHistogram(t *testing.T) {
	assert := assert.New(t)

	origin := perceive.Point{}

	testCases := []struct {
		cloud perceive.Cloud
		exp   float64
	}{
		// single bin
		{perceive.Cloud{Points: []perceive.Point{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.2}}}, 0},
		// two equally weighted bins
		{perceive.Cloud{Points: []perceive.Point{{X: 0.5, Y: 0.5}, {X: 1.5, Y: 0.5}}}, math.Log(2)},
		// four bins
		{perceive.Cloud{Points: []perceive.Point{{X: 0.5}, {X: 1.5}, {X: 2.5}, {X: 3.5}}}, math.Log(4)},
		// weights are normalized
		{perceive.Cloud{
			Points:  []perceive.Point{{X: 0.5}, {X: 1.5}},
			Weights: []float64{9, 1},
		}, -(0.9*math.Log(0.9) + 0.1*math.Log(0.1))},
		// zero weight points are ignored
		{perceive.Cloud{
			Points:  []perceive.Point{{X: 0.5}, {X: 1.5}, {X: 2.5}},
			Weights: []float64{1, 1, 0},
		}, math.Log(2)},
		// negative coordinates get their own bins
		{perceive.Cloud{Points: []perceive.Point{{X: -0.5}, {X: 0.5}}}, math.Log(2)},
	}

	for _, tc := range testCases {
		h, err := Histogram(tc.cloud, origin, 1)
		assert.NoError(err)
		assert.InDelta(tc.exp, h, 1e-12)
	}
}

func TestHistogramOrigin(t *testing.T) {
	assert := assert.New(t)

	cloud := perceive.Cloud{Points: []perceive.Point{{X: 0.4}, {X: 0.6}}}

	h, err := Histogram(cloud, perceive.Point{}, 1)
	assert.NoError(err)
	assert.InDelta(0, h, 1e-12)

	// shifting the grid splits the points
	h, err = Histogram(cloud, perceive.Point{X: 0.5}, 1)
	assert.NoError(err)
	assert.InDelta(math.Log(2), h, 1e-12)
}

func TestHistogramErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := Histogram(perceive.Cloud{}, perceive.Point{}, 1)
	assert.Error(err)

	_, err = Histogram(perceive.Cloud{Points: []perceive.Point{{}}}, perceive.Point{}, 0)
	assert.Error(err)

	_, err = Histogram(perceive.Cloud{Points: []perceive.Point{{}}, Weights: []float64{1, 2}}, perceive.Point{}, 1)
	assert.Error(err)

	_, err = Histogram(perceive.Cloud{Points: []perceive.Point{{}}, Weights: []float64{0}}, perceive.Point{}, 1)
	assert.Error(err)
}
