package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/rand"
)

// wallMap returns a 5x5 map with a vertical wall in column 2 and an unknown cell at (4,4).
func wallMap(t *testing.T) *Map {
	t.Helper()

	cells := make([]Occupancy, 25)
	for j := 0; j < 5; j++ {
		cells[j*5+2] = Occupied
	}
	cells[4*5+4] = Unknown

	m, err := NewMap(5, 5, 0.5, perceive.Point{X: -1, Y: -1}, cells)
	require.NoError(t, err)

	return m
}

func TestNewMap(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		w, h  int
		res   float64
		cells int
		ok    bool
	}{
		{w: 2, h: 2, res: 1, cells: 4, ok: true},
		{w: 0, h: 2, res: 1, cells: 0, ok: false},
		{w: 2, h: 2, res: 0, cells: 4, ok: false},
		{w: 2, h: 2, res: 1, cells: 3, ok: false},
	} {
		m, err := NewMap(test.w, test.h, test.res, perceive.Point{}, make([]Occupancy, test.cells))
		if test.ok {
			assert.NotNil(m)
			assert.NoError(err)
			continue
		}
		assert.Nil(m)
		assert.Error(err)
	}
}

func TestFreeIndex(t *testing.T) {
	assert := assert.New(t)

	m := wallMap(t)
	assert.Equal(19, m.NumFree())

	for i := 0; i < m.NumFree(); i++ {
		c, err := m.FreeCell(i)
		assert.NoError(err)
		assert.Equal(Free, m.At(c))
	}

	_, err := m.FreeCell(19)
	assert.ErrorIs(err, perceive.ErrIndexOutOfRange)
	_, err = m.FreeCell(-1)
	assert.ErrorIs(err, perceive.ErrIndexOutOfRange)
}

func TestCellCenter(t *testing.T) {
	assert := assert.New(t)

	m := wallMap(t)

	c, ok := m.Cell(perceive.Point{X: -1, Y: -1})
	assert.True(ok)
	assert.Equal(Cell{I: 0, J: 0}, c)

	c, ok = m.Cell(perceive.Point{X: 0.1, Y: 1.4})
	assert.True(ok)
	assert.Equal(Cell{I: 2, J: 4}, c)

	_, ok = m.Cell(perceive.Point{X: 1.5, Y: 0})
	assert.False(ok)
	_, ok = m.Cell(perceive.Point{X: -1.01, Y: 0})
	assert.False(ok)

	assert.Equal(perceive.Point{X: -0.75, Y: -0.75}, m.Center(Cell{}))
	assert.Equal(Unknown, m.At(Cell{I: 10, J: 0}))
	assert.Equal(Unknown, m.At(Cell{I: 4, J: 4}))
	assert.Equal(Occupied, m.At(Cell{I: 2, J: 1}))

	assert.True(m.IsFree(perceive.Point{X: -0.9, Y: -0.9}))
	assert.False(m.IsFree(perceive.Point{X: 0.1, Y: 0}))

	lo, hi := m.Bounds()
	assert.Equal(perceive.Point{X: -1, Y: -1}, lo)
	assert.Equal(perceive.Point{X: 1.5, Y: 1.5}, hi)
}

func TestSampleFree(t *testing.T) {
	assert := assert.New(t)

	m := wallMap(t)
	src := rand.New(1)
	for i := 0; i < 500; i++ {
		p, err := m.SampleFree(src)
		assert.NoError(err)
		assert.True(m.IsFree(p), "sample %v is not free", p)
	}

	// different seeds give different samples
	p1, _ := m.SampleFree(rand.New(1))
	p2, _ := m.SampleFree(rand.New(2))
	assert.NotEqual(p1, p2)

	full, err := NewMap(2, 1, 1, perceive.Point{}, []Occupancy{Occupied, Occupied})
	assert.NoError(err)
	_, err = full.SampleFree(src)
	assert.ErrorIs(err, perceive.ErrMapUnavailable)

	var nilMap *Map
	_, err = nilMap.SampleFree(src)
	assert.ErrorIs(err, perceive.ErrMapUnavailable)
}

func TestNearest(t *testing.T) {
	assert := assert.New(t)

	m := wallMap(t)

	// free point maps to its own cell center
	p, ok := m.Nearest(perceive.Point{X: -0.9, Y: -0.9}, 3)
	assert.True(ok)
	assert.Equal(perceive.Point{X: -0.75, Y: -0.75}, p)

	// point in the wall slightly left of its center goes to the left column
	p, ok = m.Nearest(perceive.Point{X: 0.2, Y: 0.3}, 3)
	assert.True(ok)
	assert.Equal(perceive.Point{X: -0.25, Y: 0.25}, p)

	// point outside the map is clamped to the border first
	p, ok = m.Nearest(perceive.Point{X: -10, Y: 0.3}, 3)
	assert.True(ok)
	assert.Equal(perceive.Point{X: -0.75, Y: 0.25}, p)

	// no free cell within radius
	full, err := NewMap(3, 1, 1, perceive.Point{}, []Occupancy{Occupied, Occupied, Free})
	assert.NoError(err)
	_, ok = full.Nearest(perceive.Point{X: 0.5, Y: 0.5}, 1)
	assert.False(ok)
	p, ok = full.Nearest(perceive.Point{X: 0.5, Y: 0.5}, 2)
	assert.True(ok)
	assert.Equal(perceive.Point{X: 2.5, Y: 0.5}, p)
}

func TestOccupancyString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("free", Free.String())
	assert.Equal("occupied", Occupied.String())
	assert.Equal("unknown", Unknown.String())
}
