package perceive

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMapUnavailable is returned when an operation needs an occupancy map that has not been set.
	ErrMapUnavailable = errors.New("map unavailable")
	// ErrSensorModelLoad is returned when the sensor probability maps can not be loaded.
	ErrSensorModelLoad = errors.New("sensor model load error")
	// ErrIndexOutOfRange is returned on out of range particle access.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrDegenerateWeights is returned when all particle weights collapse to zero.
	ErrDegenerateWeights = errors.New("degenerate particle weights")
	// ErrNoRobotPose is returned while no robot pose has been received.
	ErrNoRobotPose = errors.New("no robot pose")
)

// Point is a position in the map frame
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Pose is a planar pose in the map frame
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Point returns the position part of the pose.
func (p Pose) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// Velocity is a velocity command: linear x/y in the robot frame and angular z
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
}

// Norm returns the magnitude of the command.
func (v Velocity) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.W*v.W)
}

// Linear returns the magnitude of the linear part of the command.
func (v Velocity) Linear() float64 {
	return math.Hypot(v.X, v.Y)
}

// Cloud is an ordered set of weighted points
type Cloud struct {
	// Points are particle positions
	Points []Point `json:"points"`
	// Weights are particle weights; Weights[i] belongs to Points[i]
	Weights []float64 `json:"weights"`
}

// Len returns the number of points in the cloud.
func (c Cloud) Len() int {
	return len(c.Points)
}

// Estimate is a belief estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is process noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset rewinds the noise to its initial seed
	Reset()
}

// NormalizeAngle wraps a into [-pi, pi).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
