// Package report renders the telemetry of a finished run: an interactive
// go-echarts dashboard and a static PNG chart.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/sim"
	"github.com/banshee-data/speedtrap/internal/units"
)

// DefaultAssetsHost serves the echarts javascript.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Run is the data a report is drawn from.
type Run struct {
	RunID   string
	Params  sim.Params
	Verdict *sim.Verdict
	Samples []sim.Sample
}

// Options control rendering.
type Options struct {
	// Units selects the speed unit; empty means km/h.
	Units      string
	AssetsHost string
}

func (o Options) speedUnits() string {
	if o.Units == "" || !units.IsValid(o.Units) {
		return units.KPH
	}
	return o.Units
}

func (o Options) assetsHost() string {
	if o.AssetsHost == "" {
		return DefaultAssetsHost
	}
	return o.AssetsHost
}

// Dashboard writes an HTML page with position, speed, friction force and
// acceleration charts for the run.
func Dashboard(w io.Writer, run Run, o Options) error {
	if len(run.Samples) == 0 {
		return fmt.Errorf("run %s has no samples", run.RunID)
	}
	series := sim.Telemetry(run.Samples)
	speedUnits := o.speedUnits()

	xs := make([]string, series.Len())
	for i, t := range series.Time {
		xs[i] = strconv.FormatFloat(t, 'f', 2, 64)
	}

	speeds := make([]float64, series.Len())
	for i, v := range series.Speed {
		speeds[i] = units.ConvertKph(v, speedUnits)
	}

	position := newLine(o, "Position", "Distance travelled", "m", xs)
	position.AddSeries("position", lineData(series.Position), lineOpts(false))

	speed := newLine(o, "Speed", subtitle(run), speedUnits, xs)
	speed.AddSeries("speed", lineData(speeds), lineOpts(false))
	if limit, err := physics.SpeedLimit(run.Params.Zone); err == nil {
		speed.SetSeriesOptions(charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
			Name:  "limit",
			YAxis: units.ConvertKph(limit, speedUnits),
		}))
	}

	friction := newLine(o, "Friction force", fmt.Sprintf("weather=%s", run.Params.Weather), "N", xs)
	friction.AddSeries("friction", lineData(series.FrictionForce), lineOpts(false))

	accel := newLine(o, "Acceleration", "Speed change per second", "km/h/s", xs)
	accel.AddSeries("acceleration", lineData(series.Acceleration), lineOpts(true))

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Run %s", run.RunID)
	page.SetAssetsHost(o.assetsHost())
	page.AddCharts(position, speed, friction, accel)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func newLine(o Options, title, sub, yName string, xs []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: o.assetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: sub}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(xs)
	return line
}

// lineOpts hides per-sample symbols and optionally draws a step line.
func lineOpts(step bool) charts.SeriesOpts {
	lc := opts.LineChart{ShowSymbol: opts.Bool(false)}
	if step {
		lc.Step = "end"
	}
	return charts.WithLineChartOpts(lc)
}

func lineData(ys []float64) []opts.LineData {
	data := make([]opts.LineData, len(ys))
	for i, y := range ys {
		data[i] = opts.LineData{Value: y}
	}
	return data
}

func subtitle(run Run) string {
	s := fmt.Sprintf("zone=%s initial=%.0f km/h distance=%.0f m",
		run.Params.Zone, run.Params.InitialSpeedKph, run.Params.TotalDistanceM)
	if v := run.Verdict; v != nil {
		if v.ExceededLimit {
			s += " | SPEEDING"
		} else {
			s += " | compliant"
		}
	}
	return s
}
