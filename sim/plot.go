package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/grid"
)

// Snapshot is a single frame of a tracking run
type Snapshot struct {
	// Map is drawn as occupied cells; nil skips it
	Map *grid.Map
	// Belief is the person belief particle cloud
	Belief perceive.Cloud
	// Estimate is the person position estimate; nil skips it
	Estimate *perceive.Point
	// Person is the true person position; nil skips it
	Person *perceive.Point
	// Robots are the robot poses
	Robots []perceive.Pose
	// Path is the predicted robot path for the chosen command
	Path []perceive.Pose
}

// NewCloudPlot creates new plot of the snapshot s.
// It returns error if the belief is empty or gonum plot fails to be created.
func NewCloudPlot(s Snapshot) (*plot.Plot, error) {
	if s.Belief.Len() == 0 {
		return nil, fmt.Errorf("invalid belief: %d particles", s.Belief.Len())
	}

	p := plot.New()

	p.Title.Text = "Person belief"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	if s.Map != nil {
		if walls := occupied(s.Map); len(walls) > 0 {
			wallScatter, err := plotter.NewScatter(walls)
			if err != nil {
				return nil, err
			}
			wallScatter.GlyphStyle.Color = color.Black
			wallScatter.Shape = draw.BoxGlyph{}
			wallScatter.GlyphStyle.Radius = vg.Points(1)
			p.Add(wallScatter)
		}
	}

	// Make a scatter plotter for belief particles
	beliefScatter, err := plotter.NewScatter(points(s.Belief.Points))
	if err != nil {
		return nil, err
	}
	beliefScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	beliefScatter.GlyphStyle.Radius = vg.Points(1)

	p.Add(beliefScatter)
	p.Legend.Add("particles", beliefScatter)

	if len(s.Robots) > 0 {
		robotScatter, err := plotter.NewScatter(poses(s.Robots))
		if err != nil {
			return nil, err
		}
		robotScatter.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
		robotScatter.Shape = draw.PyramidGlyph{}
		robotScatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(robotScatter)
		p.Legend.Add("robot", robotScatter)
	}

	if len(s.Path) > 0 {
		path, err := plotter.NewLine(poses(s.Path))
		if err != nil {
			return nil, fmt.Errorf("Failed to create path line: %v", err)
		}
		path.LineStyle.Color = color.RGBA{B: 255, A: 128}
		path.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}

		p.Add(path)
		p.Legend.Add("plan", path)
	}

	if s.Estimate != nil {
		estScatter, err := plotter.NewScatter(points([]perceive.Point{*s.Estimate}))
		if err != nil {
			return nil, err
		}
		estScatter.GlyphStyle.Color = color.RGBA{G: 160, A: 255}
		estScatter.Shape = draw.CrossGlyph{}
		estScatter.GlyphStyle.Radius = vg.Points(5)

		p.Add(estScatter)
		p.Legend.Add("estimate", estScatter)
	}

	if s.Person != nil {
		personScatter, err := plotter.NewScatter(points([]perceive.Point{*s.Person}))
		if err != nil {
			return nil, err
		}
		personScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
		personScatter.Shape = draw.CircleGlyph{}
		personScatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(personScatter)
		p.Legend.Add("person", personScatter)
	}

	return p, nil
}

func points(pts []perceive.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i].X = p.X
		xys[i].Y = p.Y
	}

	return xys
}

func poses(ps []perceive.Pose) plotter.XYs {
	xys := make(plotter.XYs, len(ps))
	for i, p := range ps {
		xys[i].X = p.X
		xys[i].Y = p.Y
	}

	return xys
}

func occupied(m *grid.Map) plotter.XYs {
	var xys plotter.XYs
	for j := 0; j < m.Height(); j++ {
		for i := 0; i < m.Width(); i++ {
			c := grid.Cell{I: i, J: j}
			if m.At(c) != grid.Occupied {
				continue
			}
			p := m.Center(c)
			xys = append(xys, plotter.XY{X: p.X, Y: p.Y})
		}
	}

	return xys
}
