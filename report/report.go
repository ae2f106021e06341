// Package report renders tracker runs as HTML charts.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/milosgajdos/go-perceive/recorder"
)

// Render writes an HTML page with charts of ticks to w:
// belief entropy, velocity commands and the person position estimate.
// It returns error if there are no ticks or the page fails to render.
func Render(w io.Writer, ticks []recorder.Tick) error {
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks to render")
	}

	page := components.NewPage()
	page.AddCharts(
		entropyChart(ticks),
		commandChart(ticks),
		positionChart(ticks),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}

func xAxis(ticks []recorder.Tick) []int {
	x := make([]int, len(ticks))
	for i, t := range ticks {
		x[i] = t.Seq
	}

	return x
}

func entropyChart(ticks []recorder.Tick) *charts.Line {
	h := make([]opts.LineData, len(ticks))
	e := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		h[i] = opts.LineData{Value: t.Entropy}
		e[i] = opts.LineData{Value: t.Expected}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Person tracking", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Belief entropy", Subtitle: fmt.Sprintf("ticks=%d", len(ticks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "nats", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(xAxis(ticks)).
		AddSeries("entropy", h).
		AddSeries("expected", e)

	return line
}

func commandChart(ticks []recorder.Tick) *charts.Line {
	vx := make([]opts.LineData, len(ticks))
	vy := make([]opts.LineData, len(ticks))
	w := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		vx[i] = opts.LineData{Value: t.Command.X}
		vy[i] = opts.LineData{Value: t.Command.Y}
		w[i] = opts.LineData{Value: t.Command.W}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Velocity commands"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(xAxis(ticks)).
		AddSeries("vx", vx).
		AddSeries("vy", vy).
		AddSeries("w", w)

	return line
}

func positionChart(ticks []recorder.Tick) *charts.Scatter {
	est := make([]opts.ScatterData, 0, len(ticks))
	truth := make([]opts.ScatterData, 0, len(ticks))
	for _, t := range ticks {
		if t.Estimate != nil {
			est = append(est, opts.ScatterData{Value: []interface{}{t.Estimate.X, t.Estimate.Y, t.Seq}})
		}
		if t.Truth != nil {
			truth = append(truth, opts.ScatterData{Value: []interface{}{t.Truth.X, t.Truth.Y, t.Seq}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Person position", Subtitle: fmt.Sprintf("estimates=%d", len(est))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("estimate", est, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(truth) > 0 {
		scatter.AddSeries("truth", truth, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	}

	return scatter
}
