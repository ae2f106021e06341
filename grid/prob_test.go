package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProbGrid(t *testing.T) {
	assert := assert.New(t)

	g, err := NewProbGrid(3, 3, 0.5, make([]float64, 9))
	assert.NotNil(g)
	assert.NoError(err)

	g, err = NewProbGrid(3, 3, 0.5, make([]float64, 8))
	assert.Nil(g)
	assert.Error(err)

	g, err = NewProbGrid(3, 3, -1, make([]float64, 9))
	assert.Nil(g)
	assert.Error(err)

	bad := make([]float64, 9)
	bad[4] = 1.5
	g, err = NewProbGrid(3, 3, 0.5, bad)
	assert.Nil(g)
	assert.Error(err)
}

func TestProbGridAt(t *testing.T) {
	assert := assert.New(t)

	data := []float64{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
		0.7, 0.8, 0.9,
	}
	g, err := NewProbGrid(3, 3, 1.0, data)
	assert.NoError(err)

	w, h := g.Dims()
	assert.Equal(3, w)
	assert.Equal(3, h)
	assert.Equal(1.0, g.Resolution())

	for _, test := range []struct {
		dx, dy float64
		p      float64
		ok     bool
	}{
		{dx: 0, dy: 0, p: 0.5, ok: true},
		{dx: 0.4, dy: -0.4, p: 0.5, ok: true},
		{dx: 1, dy: 0, p: 0.6, ok: true},
		{dx: -1, dy: -1, p: 0.1, ok: true},
		{dx: 1, dy: 1, p: 0.9, ok: true},
		{dx: 1.6, dy: 0, ok: false},
		{dx: 0, dy: -2, ok: false},
	} {
		p, ok := g.At(test.dx, test.dy)
		assert.Equal(test.ok, ok)
		if ok {
			assert.Equal(test.p, p)
		}
	}
}
