// Package entropy implements uncertainty measures of weighted particle clouds.
package entropy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	perceive "github.com/milosgajdos/go-perceive"
)

// bin indexes a histogram cell
type bin struct {
	i, j int
}

// Histogram discretizes cloud into square bins of size res aligned with origin
// and returns Shannon entropy of the resulting probability mass function in nats.
// Nil cloud weights are treated as uniform.
// It returns error if res is not positive, the weights do not match the points
// or they do not sum up to a positive number.
func Histogram(cloud perceive.Cloud, origin perceive.Point, res float64) (float64, error) {
	masses, err := binMasses(cloud, origin, res)
	if err != nil {
		return 0, err
	}

	p := make([]float64, 0, len(masses))
	for _, m := range masses {
		p = append(p, m)
	}

	return stat.Entropy(p), nil
}

// binMasses returns normalized probability mass of every non-empty bin.
func binMasses(cloud perceive.Cloud, origin perceive.Point, res float64) (map[bin]float64, error) {
	w, err := weights(cloud)
	if err != nil {
		return nil, err
	}

	if !(res > 0) {
		return nil, fmt.Errorf("invalid histogram resolution: %f", res)
	}

	masses := make(map[bin]float64)
	for i, p := range cloud.Points {
		if w[i] == 0 {
			continue
		}
		masses[binOf(p, origin, res)] += w[i]
	}

	return masses, nil
}

func binOf(p, origin perceive.Point, res float64) bin {
	return bin{
		i: int(math.Floor((p.X - origin.X) / res)),
		j: int(math.Floor((p.Y - origin.Y) / res)),
	}
}

// weights returns normalized cloud weights.
func weights(cloud perceive.Cloud) ([]float64, error) {
	if cloud.Len() == 0 {
		return nil, fmt.Errorf("empty cloud")
	}

	w := make([]float64, cloud.Len())
	if cloud.Weights == nil {
		for i := range w {
			w[i] = 1 / float64(len(w))
		}
		return w, nil
	}

	if len(cloud.Weights) != cloud.Len() {
		return nil, fmt.Errorf("invalid weight count: %d, expected: %d", len(cloud.Weights), cloud.Len())
	}

	copy(w, cloud.Weights)
	sum := floats.Sum(w)
	if !(sum > 0) || math.IsInf(sum, 1) {
		return nil, fmt.Errorf("invalid weight sum: %f", sum)
	}
	floats.Scale(1/sum, w)

	return w, nil
}
