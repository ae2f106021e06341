package grid

import (
	"fmt"
	"math"
)

// ProbGrid is a grid of probabilities centered at its middle cell.
// Cells are addressed by metric offsets from the grid center.
type ProbGrid struct {
	// width is number of grid columns
	width int
	// height is number of grid rows
	height int
	// resolution is cell size in meters
	resolution float64
	// data stores probabilities in row-major order; row 0 is the lowest y offset
	data []float64
}

// NewProbGrid creates new probability grid and returns it.
// It returns error if the dimensions are invalid or any value lies outside [0,1].
func NewProbGrid(width, height int, resolution float64, data []float64) (*ProbGrid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions: [%d x %d]", width, height)
	}

	if !(resolution > 0) {
		return nil, fmt.Errorf("invalid grid resolution: %f", resolution)
	}

	if len(data) != width*height {
		return nil, fmt.Errorf("invalid grid data size: %d, expected: %d", len(data), width*height)
	}

	for i, v := range data {
		if !(v >= 0 && v <= 1) {
			return nil, fmt.Errorf("invalid probability %f at %d", v, i)
		}
	}

	d := make([]float64, len(data))
	copy(d, data)

	return &ProbGrid{
		width:      width,
		height:     height,
		resolution: resolution,
		data:       d,
	}, nil
}

// Dims returns grid dimensions.
func (g *ProbGrid) Dims() (width, height int) {
	return g.width, g.height
}

// Resolution returns grid cell size in meters.
func (g *ProbGrid) Resolution() float64 {
	return g.resolution
}

// At returns the probability stored at offset (dx, dy) meters from the grid center.
// It returns false if the offset falls outside the grid.
func (g *ProbGrid) At(dx, dy float64) (float64, bool) {
	i := int(math.Round(dx/g.resolution)) + (g.width-1)/2
	j := int(math.Round(dy/g.resolution)) + (g.height-1)/2

	if i < 0 || i >= g.width || j < 0 || j >= g.height {
		return 0, false
	}

	return g.data[j*g.width+i], true
}
