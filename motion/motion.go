// Package motion implements a noisy velocity motion model for holonomic robots.
package motion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/rand"
)

// straight is the angular velocity below which the motion is integrated as a straight line
const straight = 1e-6

// Params are motion model noise coefficients.
// All coefficients scale variances and must be non-negative.
type Params struct {
	// AlphaV scales linear velocity noise by the squared velocity along the same axis
	AlphaV float64 `json:"alpha_v"`
	// AlphaVXY scales linear velocity noise by the squared velocity along the other axis
	AlphaVXY float64 `json:"alpha_vxy"`
	// AlphaVW scales linear velocity noise by the squared angular velocity
	AlphaVW float64 `json:"alpha_vw"`
	// AlphaW scales angular velocity noise by the squared angular velocity
	AlphaW float64 `json:"alpha_w"`
	// AlphaWV scales angular velocity noise by the squared linear velocity
	AlphaWV float64 `json:"alpha_wv"`
	// AlphaVG scales final rotation noise by the squared linear velocity
	AlphaVG float64 `json:"alpha_vg"`
	// AlphaWG scales final rotation noise by the squared angular velocity
	AlphaWG float64 `json:"alpha_wg"`
}

// Validate returns error if any of the coefficients is negative or not a number.
func (p Params) Validate() error {
	for name, a := range map[string]float64{
		"alpha_v":   p.AlphaV,
		"alpha_vxy": p.AlphaVXY,
		"alpha_vw":  p.AlphaVW,
		"alpha_w":   p.AlphaW,
		"alpha_wv":  p.AlphaWV,
		"alpha_vg":  p.AlphaVG,
		"alpha_wg":  p.AlphaWG,
	} {
		if !(a >= 0) {
			return fmt.Errorf("invalid motion coefficient %s: %f", name, a)
		}
	}

	return nil
}

// Model is a velocity motion model.
// The commanded velocity is corrupted by zero-mean Gaussian noise whose variance grows
// with the commanded velocity, then integrated over the arc it describes.
type Model struct {
	p Params
}

// New creates new motion model with noise coefficients p and returns it.
// It returns error if p is invalid.
func New(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Model{p: p}, nil
}

// Params returns model noise coefficients.
func (m *Model) Params() Params {
	return m.p
}

// Cov returns diagonal covariance of the velocity noise for commanded velocity v.
// The diagonal stores variances of linear x, linear y, angular and final rotation noise.
func (m *Model) Cov(v perceive.Velocity) mat.Symmetric {
	vx2, vy2, w2 := v.X*v.X, v.Y*v.Y, v.W*v.W

	return mat.NewDiagDense(4, []float64{
		m.p.AlphaV*vx2 + m.p.AlphaVXY*vy2 + m.p.AlphaVW*w2,
		m.p.AlphaV*vy2 + m.p.AlphaVXY*vx2 + m.p.AlphaVW*w2,
		m.p.AlphaW*w2 + m.p.AlphaWV*(vx2+vy2),
		m.p.AlphaVG*(vx2+vy2) + m.p.AlphaWG*w2,
	})
}

// Sample draws n poses the robot may end up in after moving from pose with commanded velocity v for dt seconds.
// It returns nil if n is not positive.
func (m *Model) Sample(src *rand.Source, v perceive.Velocity, pose perceive.Pose, dt float64, n int) []perceive.Pose {
	if n <= 0 {
		return nil
	}

	poses := make([]perceive.Pose, n)
	for i := range poses {
		poses[i] = m.sample(src, v, pose, dt)
	}

	return poses
}

// Propagate moves every pose in poses with commanded velocity v for dt seconds
// drawing independent noise for each of them and returns the new poses.
func (m *Model) Propagate(src *rand.Source, v perceive.Velocity, poses []perceive.Pose, dt float64) []perceive.Pose {
	out := make([]perceive.Pose, len(poses))
	for i := range poses {
		out[i] = m.sample(src, v, poses[i], dt)
	}

	return out
}

func (m *Model) sample(src *rand.Source, v perceive.Velocity, pose perceive.Pose, dt float64) perceive.Pose {
	cov := m.Cov(v)

	noisy := perceive.Velocity{
		X: v.X + src.Normal(math.Sqrt(cov.At(0, 0))),
		Y: v.Y + src.Normal(math.Sqrt(cov.At(1, 1))),
		W: v.W + src.Normal(math.Sqrt(cov.At(2, 2))),
	}
	gamma := src.Normal(math.Sqrt(cov.At(3, 3)))

	next := Integrate(noisy, pose, dt)
	next.Theta = perceive.NormalizeAngle(next.Theta + gamma*dt)

	return next
}

// Integrate returns the pose reached from pose by moving with velocity v for dt seconds.
// Linear velocity is expressed in the robot frame.
func Integrate(v perceive.Velocity, pose perceive.Pose, dt float64) perceive.Pose {
	sin, cos := math.Sincos(pose.Theta)

	if math.Abs(v.W) < straight {
		return perceive.Pose{
			X:     pose.X + (v.X*cos-v.Y*sin)*dt,
			Y:     pose.Y + (v.X*sin+v.Y*cos)*dt,
			Theta: pose.Theta,
		}
	}

	theta := pose.Theta + v.W*dt
	sin2, cos2 := math.Sincos(theta)

	return perceive.Pose{
		X:     pose.X + (v.X*(sin2-sin)+v.Y*(cos2-cos))/v.W,
		Y:     pose.Y + (v.X*(cos-cos2)+v.Y*(sin2-sin))/v.W,
		Theta: perceive.NormalizeAngle(theta),
	}
}
