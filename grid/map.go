// Package grid implements occupancy maps and probability grids.
package grid

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/rand"
)

// Occupancy is occupancy state of a map cell
type Occupancy int8

const (
	// Unknown marks cells with unknown occupancy
	Unknown Occupancy = iota - 1
	// Free marks free cells
	Free
	// Occupied marks occupied cells
	Occupied
)

// String implements the Stringer interface.
func (o Occupancy) String() string {
	switch o {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Cell is a map cell index: I is the column (x), J is the row (y).
type Cell struct {
	I int
	J int
}

// Map is an occupancy grid map.
// Row 0 of the map is the row closest to the map origin.
type Map struct {
	// width is number of map columns
	width int
	// height is number of map rows
	height int
	// resolution is cell size in meters
	resolution float64
	// origin is the position of the corner of cell (0,0)
	origin perceive.Point
	// cells stores cell occupancy in row-major order
	cells []Occupancy
	// free indexes the free cells
	free []Cell
}

// NewMap creates new occupancy map and returns it.
// It returns error if the dimensions or resolution are not positive or if
// the number of cells does not match the dimensions.
func NewMap(width, height int, resolution float64, origin perceive.Point, cells []Occupancy) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid map dimensions: [%d x %d]", width, height)
	}

	if !(resolution > 0) {
		return nil, fmt.Errorf("invalid map resolution: %f", resolution)
	}

	if len(cells) != width*height {
		return nil, fmt.Errorf("invalid cell count: %d, expected: %d", len(cells), width*height)
	}

	c := make([]Occupancy, len(cells))
	copy(c, cells)

	m := &Map{
		width:      width,
		height:     height,
		resolution: resolution,
		origin:     origin,
		cells:      c,
	}
	m.index()

	return m, nil
}

// NewFreeMap creates a map whose cells are all free.
func NewFreeMap(width, height int, resolution float64, origin perceive.Point) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid map dimensions: [%d x %d]", width, height)
	}

	return NewMap(width, height, resolution, origin, make([]Occupancy, width*height))
}

func (m *Map) index() {
	m.free = m.free[:0]
	for j := 0; j < m.height; j++ {
		for i := 0; i < m.width; i++ {
			if m.cells[j*m.width+i] == Free {
				m.free = append(m.free, Cell{I: i, J: j})
			}
		}
	}
}

// Width returns number of map columns.
func (m *Map) Width() int { return m.width }

// Height returns number of map rows.
func (m *Map) Height() int { return m.height }

// Resolution returns map cell size in meters.
func (m *Map) Resolution() float64 { return m.resolution }

// Origin returns map origin.
func (m *Map) Origin() perceive.Point { return m.origin }

// Bounds returns the lower left and upper right corner of the map.
func (m *Map) Bounds() (perceive.Point, perceive.Point) {
	return m.origin, perceive.Point{
		X: m.origin.X + float64(m.width)*m.resolution,
		Y: m.origin.Y + float64(m.height)*m.resolution,
	}
}

// Cell returns the cell containing p.
// It returns false if p lies outside the map.
func (m *Map) Cell(p perceive.Point) (Cell, bool) {
	c := Cell{
		I: int(math.Floor((p.X - m.origin.X) / m.resolution)),
		J: int(math.Floor((p.Y - m.origin.Y) / m.resolution)),
	}

	return c, m.Contains(c)
}

// Contains returns true if c is a valid map cell.
func (m *Map) Contains(c Cell) bool {
	return c.I >= 0 && c.I < m.width && c.J >= 0 && c.J < m.height
}

// Center returns the center of cell c.
func (m *Map) Center(c Cell) perceive.Point {
	return perceive.Point{
		X: m.origin.X + (float64(c.I)+0.5)*m.resolution,
		Y: m.origin.Y + (float64(c.J)+0.5)*m.resolution,
	}
}

// At returns occupancy of cell c. Cells outside the map are Unknown.
func (m *Map) At(c Cell) Occupancy {
	if !m.Contains(c) {
		return Unknown
	}

	return m.cells[c.J*m.width+c.I]
}

// IsFree returns true if p lies in a free cell.
func (m *Map) IsFree(p perceive.Point) bool {
	c, ok := m.Cell(p)
	return ok && m.At(c) == Free
}

// NumFree returns number of free cells.
func (m *Map) NumFree() int {
	return len(m.free)
}

// FreeCell returns i-th free cell.
func (m *Map) FreeCell(i int) (Cell, error) {
	if i < 0 || i >= len(m.free) {
		return Cell{}, errors.Wrapf(perceive.ErrIndexOutOfRange, "free cell %d", i)
	}

	return m.free[i], nil
}

// SampleFree draws a position uniformly from the free space of the map.
// It returns ErrMapUnavailable if the map has no free space.
func (m *Map) SampleFree(src *rand.Source) (perceive.Point, error) {
	if m == nil || len(m.free) == 0 {
		return perceive.Point{}, errors.Wrap(perceive.ErrMapUnavailable, "no free space")
	}

	c := m.free[src.Intn(len(m.free))]
	lo := perceive.Point{
		X: m.origin.X + float64(c.I)*m.resolution,
		Y: m.origin.Y + float64(c.J)*m.resolution,
	}

	return perceive.Point{
		X: src.Uniform(lo.X, lo.X+m.resolution),
		Y: src.Uniform(lo.Y, lo.Y+m.resolution),
	}, nil
}

// Nearest returns the center of the free cell nearest to p searching at most
// radius cells away from the map cell closest to p.
// It returns false if no free cell was found.
func (m *Map) Nearest(p perceive.Point, radius int) (perceive.Point, bool) {
	c := Cell{
		I: clamp(int(math.Floor((p.X-m.origin.X)/m.resolution)), 0, m.width-1),
		J: clamp(int(math.Floor((p.Y-m.origin.Y)/m.resolution)), 0, m.height-1),
	}

	if m.At(c) == Free {
		return m.Center(c), true
	}

	for r := 1; r <= radius; r++ {
		best, found := Cell{}, false
		bestDist := math.Inf(1)
		// walk the square ring r cells away from c
		for dj := -r; dj <= r; dj++ {
			for di := -r; di <= r; di++ {
				if abs(di) != r && abs(dj) != r {
					continue
				}
				n := Cell{I: c.I + di, J: c.J + dj}
				if m.At(n) != Free {
					continue
				}
				if d := p.Dist(m.Center(n)); d < bestDist {
					best, bestDist, found = n, d, true
				}
			}
		}
		if found {
			return m.Center(best), true
		}
	}

	return perceive.Point{}, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
