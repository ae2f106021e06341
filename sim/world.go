// Package sim simulates a robot looking for a person carrying an RFID tag.
package sim

import (
	"fmt"
	"math"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/grid"
	"github.com/milosgajdos/go-perceive/motion"
	"github.com/milosgajdos/go-perceive/noise"
	"github.com/milosgajdos/go-perceive/rand"
	"github.com/milosgajdos/go-perceive/sensor"
)

// Config configures World
type Config struct {
	// Map is the occupancy map both robot and person move in
	Map *grid.Map
	// Field generates RFID readings
	Field *sensor.Field
	// Motion moves the robot; nil moves it noiselessly
	Motion *motion.Model
	// Robot is the initial robot pose
	Robot perceive.Pose
	// Person is the initial person position
	Person perceive.Point
	// Sigma is the person random walk standard deviation per sqrt(second)
	Sigma float64
	// Localization perturbs robot localization clouds in x, y and theta; nil means exact localization
	Localization perceive.Noise
	// Src drives the simulation
	Src *rand.Source
}

// World is a simulated world with a single robot and a single person
type World struct {
	m      *grid.Map
	field  *sensor.Field
	motion *motion.Model
	robot  perceive.Pose
	person perceive.Point
	odom   perceive.Velocity
	walk   perceive.Noise
	loc    perceive.Noise
	src    *rand.Source
}

// NewWorld creates new World and returns it.
// It returns error if the map or the field is missing or if either
// the robot or the person do not start in free space.
func NewWorld(c Config) (*World, error) {
	if c.Map == nil {
		return nil, fmt.Errorf("invalid map: %v", c.Map)
	}

	if c.Field == nil {
		return nil, fmt.Errorf("invalid sensor field: %v", c.Field)
	}

	if c.Sigma < 0 {
		return nil, fmt.Errorf("invalid person sigma: %f", c.Sigma)
	}

	if !c.Map.IsFree(c.Robot.Point()) {
		return nil, fmt.Errorf("robot starts in occupied space: %+v", c.Robot)
	}

	if !c.Map.IsFree(c.Person) {
		return nil, fmt.Errorf("person starts in occupied space: %+v", c.Person)
	}

	src := c.Src
	if src == nil {
		src = rand.NewTime()
	}

	var walk perceive.Noise
	var err error
	if c.Sigma > 0 {
		walk, err = noise.NewIsotropic(2, c.Sigma, src.Rand().Uint64())
	} else {
		walk, err = noise.NewZero(2)
	}
	if err != nil {
		return nil, err
	}

	loc := c.Localization
	if loc == nil {
		loc, _ = noise.NewZero(3)
	}
	if len(loc.Mean()) != 3 {
		return nil, fmt.Errorf("invalid localization noise dimension: %d", len(loc.Mean()))
	}

	return &World{
		m:      c.Map,
		field:  c.Field,
		motion: c.Motion,
		robot:  c.Robot,
		person: c.Person,
		walk:   walk,
		loc:    loc,
		src:    src,
	}, nil
}

// Robot returns the true robot pose.
func (w *World) Robot() perceive.Pose {
	return w.robot
}

// Person returns the true person position.
func (w *World) Person() perceive.Point {
	return w.person
}

// Odometry returns the velocity the robot executed in the last step.
func (w *World) Odometry() perceive.Velocity {
	return w.odom
}

// Step moves the robot by cmd and the person by a random walk over dt seconds.
// Moves that would end in occupied space are not executed.
func (w *World) Step(cmd perceive.Velocity, dt float64) {
	next := motion.Integrate(cmd, w.robot, dt)
	if w.motion != nil {
		next = w.motion.Sample(w.src, cmd, w.robot, dt, 1)[0]
	}

	w.odom = perceive.Velocity{}
	if w.m.IsFree(next.Point()) {
		w.robot = next
		w.odom = cmd
	}

	if dt <= 0 {
		return
	}

	s := math.Sqrt(dt)
	d := w.walk.Sample()
	p := perceive.Point{
		X: w.person.X + s*d.AtVec(0),
		Y: w.person.Y + s*d.AtVec(1),
	}
	if w.m.IsFree(p) {
		w.person = p
	}
}

// Reading draws an RFID reading from the sensor field for the current robot and person.
func (w *World) Reading() bool {
	return w.src.Float64() < w.field.Likelihood(w.person, w.robot, true)
}

// Cloud returns n robot poses scattered around the true pose by the localization noise.
func (w *World) Cloud(n int) []perceive.Pose {
	if n <= 0 {
		return nil
	}

	cloud := make([]perceive.Pose, n)
	for i := range cloud {
		d := w.loc.Sample()
		cloud[i] = perceive.Pose{
			X:     w.robot.X + d.AtVec(0),
			Y:     w.robot.Y + d.AtVec(1),
			Theta: perceive.NormalizeAngle(w.robot.Theta + d.AtVec(2)),
		}
	}

	return cloud
}
