// Package sensor implements the binary RFID sensor likelihood field.
package sensor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/grid"
)

const (
	// PosSuffix is appended to the probability map prefix to get the positive map image
	PosSuffix = "_pos.png"
	// NegSuffix is appended to the probability map prefix to get the negative map image
	NegSuffix = "_neg.png"
	// DefaultMinProb is the default likelihood floor
	DefaultMinProb = 0.01
)

// Field converts a binary sensor reading and the relative position of the person
// with respect to the robot into an observation likelihood.
// Both probability grids are centered at the robot and aligned with the robot heading.
type Field struct {
	// pos stores probability of a positive reading
	pos *grid.ProbGrid
	// neg stores probability of a negative reading
	neg *grid.ProbGrid
	// min is the likelihood floor; offsets outside the grids saturate to it
	min float64
}

// New creates new likelihood field from the positive and negative probability grids.
// It returns ErrSensorModelLoad if either grid is missing or the grids differ in size or resolution.
func New(pos, neg *grid.ProbGrid, minProb float64) (*Field, error) {
	if pos == nil || neg == nil {
		return nil, errors.Wrap(perceive.ErrSensorModelLoad, "missing probability grid")
	}

	pw, ph := pos.Dims()
	nw, nh := neg.Dims()
	if pw != nw || ph != nh || pos.Resolution() != neg.Resolution() {
		return nil, errors.Wrapf(perceive.ErrSensorModelLoad,
			"probability grids differ: [%d x %d]@%f vs [%d x %d]@%f",
			pw, ph, pos.Resolution(), nw, nh, neg.Resolution())
	}

	if !(minProb >= 0 && minProb <= 1) {
		return nil, fmt.Errorf("invalid minimum probability: %f", minProb)
	}

	return &Field{
		pos: pos,
		neg: neg,
		min: minProb,
	}, nil
}

// Load loads the likelihood field from prefix+PosSuffix and prefix+NegSuffix images
// with the given grid resolution.
// It returns ErrSensorModelLoad if either image is missing or malformed.
func Load(prefix string, resolution, minProb float64) (*Field, error) {
	pos, err := grid.LoadProbGrid(prefix+PosSuffix, resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", perceive.ErrSensorModelLoad, err)
	}

	neg, err := grid.LoadProbGrid(prefix+NegSuffix, resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", perceive.ErrSensorModelLoad, err)
	}

	return New(pos, neg, minProb)
}

// MinProb returns the likelihood floor.
func (f *Field) MinProb() float64 {
	return f.min
}

// Likelihood returns the probability of reading given the person is at person and the robot at robot.
// The returned value lies in [MinProb, 1].
func (f *Field) Likelihood(person perceive.Point, robot perceive.Pose, reading bool) float64 {
	dx, dy := person.X-robot.X, person.Y-robot.Y
	sin, cos := math.Sincos(robot.Theta)
	// rotate the offset into the robot frame
	rx := cos*dx + sin*dy
	ry := -sin*dx + cos*dy

	g := f.neg
	if reading {
		g = f.pos
	}

	p, ok := g.At(rx, ry)
	if !ok || p < f.min {
		return f.min
	}

	return p
}

// CloudLikelihood returns the average likelihood of reading over the robot poses in robots.
// It accounts for robot localization uncertainty. Empty robots returns MinProb.
func (f *Field) CloudLikelihood(person perceive.Point, robots []perceive.Pose, reading bool) float64 {
	if len(robots) == 0 {
		return f.min
	}

	sum := 0.0
	for _, r := range robots {
		sum += f.Likelihood(person, r, reading)
	}

	return sum / float64(len(robots))
}
