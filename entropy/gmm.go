package entropy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	perceive "github.com/milosgajdos/go-perceive"
)

// Component is a single Gaussian mixture component
type Component struct {
	// Weight is mixing weight
	Weight float64
	// Mean is component mean
	Mean perceive.Point
	// Cov is component covariance
	Cov *mat.SymDense
}

// Mixture is a 2D Gaussian mixture
type Mixture struct {
	Components []Component
}

// Fit approximates cloud by a Gaussian mixture with one component per non-empty histogram bin.
// Each component gets the bin mass, the weighted mean of the bin points and their weighted
// covariance inflated by the variance of a uniform distribution over the bin.
// It returns error if the cloud can not be binned.
func Fit(cloud perceive.Cloud, origin perceive.Point, res float64) (*Mixture, error) {
	w, err := weights(cloud)
	if err != nil {
		return nil, err
	}

	if !(res > 0) {
		return nil, fmt.Errorf("invalid histogram resolution: %f", res)
	}

	type acc struct {
		w, x, y, xx, xy, yy float64
	}

	bins := make(map[bin]*acc)
	order := make([]bin, 0)
	for i, p := range cloud.Points {
		if w[i] == 0 {
			continue
		}
		b := binOf(p, origin, res)
		a, ok := bins[b]
		if !ok {
			a = &acc{}
			bins[b] = a
			order = append(order, b)
		}
		a.w += w[i]
		a.x += w[i] * p.X
		a.y += w[i] * p.Y
		a.xx += w[i] * p.X * p.X
		a.xy += w[i] * p.X * p.Y
		a.yy += w[i] * p.Y * p.Y
	}

	// variance of a uniform distribution over a bin
	floor := res * res / 12

	m := &Mixture{Components: make([]Component, 0, len(order))}
	for _, b := range order {
		a := bins[b]
		mx, my := a.x/a.w, a.y/a.w
		vxx := math.Max(a.xx/a.w-mx*mx, 0) + floor
		vyy := math.Max(a.yy/a.w-my*my, 0) + floor
		vxy := a.xy/a.w - mx*my
		m.Components = append(m.Components, Component{
			Weight: a.w,
			Mean:   perceive.Point{X: mx, Y: my},
			Cov:    mat.NewSymDense(2, []float64{vxx, vxy, vxy, vyy}),
		})
	}

	return m, nil
}

// Entropy returns the lower bound of the mixture differential entropy in nats:
// -Σ_i w_i log Σ_j w_j N(μ_i; μ_j, Σ_i+Σ_j)
// It returns error if any pairwise covariance is not positive definite.
func (m *Mixture) Entropy() (float64, error) {
	if len(m.Components) == 0 {
		return 0, fmt.Errorf("empty mixture")
	}

	h := 0.0
	terms := make([]float64, len(m.Components))
	sum := mat.NewSymDense(2, nil)
	for i, ci := range m.Components {
		mu := []float64{ci.Mean.X, ci.Mean.Y}
		for j, cj := range m.Components {
			sum.AddSym(ci.Cov, cj.Cov)
			n, ok := distmv.NewNormal([]float64{cj.Mean.X, cj.Mean.Y}, sum, nil)
			if !ok {
				return 0, fmt.Errorf("invalid covariance of components %d and %d", i, j)
			}
			terms[j] = math.Log(cj.Weight) + n.LogProb(mu)
		}
		h -= ci.Weight * floats.LogSumExp(terms)
	}

	return h, nil
}

// UpperBound returns the upper bound of the mixture differential entropy in nats:
// Σ_i w_i (-log w_i + ½ log((2πe)^d |Σ_i|))
// It returns error if any component covariance is not positive definite.
func (m *Mixture) UpperBound() (float64, error) {
	if len(m.Components) == 0 {
		return 0, fmt.Errorf("empty mixture")
	}

	h := 0.0
	for i, c := range m.Components {
		n, ok := distmv.NewNormal([]float64{c.Mean.X, c.Mean.Y}, c.Cov, nil)
		if !ok {
			return 0, fmt.Errorf("invalid covariance of component %d", i)
		}
		h += c.Weight * (n.Entropy() - math.Log(c.Weight))
	}

	return h, nil
}

// GMM fits a Gaussian mixture to cloud and returns the lower bound of its differential entropy.
func GMM(cloud perceive.Cloud, origin perceive.Point, res float64) (float64, error) {
	m, err := Fit(cloud, origin, res)
	if err != nil {
		return 0, err
	}

	return m.Entropy()
}
