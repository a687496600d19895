package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/units"
)

// PlotKind selects the series drawn by WritePNG.
type PlotKind string

const (
	PlotSpeed    PlotKind = "speed"
	PlotPosition PlotKind = "position"
)

// ParsePlotKind maps a query value to a PlotKind; empty selects PlotSpeed.
func ParsePlotKind(s string) (PlotKind, error) {
	switch PlotKind(s) {
	case "", PlotSpeed:
		return PlotSpeed, nil
	case PlotPosition:
		return PlotPosition, nil
	default:
		return "", fmt.Errorf("unknown plot %q", s)
	}
}

var (
	seriesColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	limitColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// WritePNG draws one telemetry series of the run as a PNG image. Speed plots
// include the zone limit and the checkpoint time as reference lines.
func WritePNG(w io.Writer, run Run, kind PlotKind, o Options) error {
	if len(run.Samples) == 0 {
		return fmt.Errorf("run %s has no samples", run.RunID)
	}

	p := plot.New()
	p.X.Label.Text = "t (s)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(run.Samples))
	speedUnits := o.speedUnits()
	for i, s := range run.Samples {
		pts[i].X = s.TimeS
		switch kind {
		case PlotPosition:
			pts[i].Y = s.PositionM
		default:
			pts[i].Y = units.ConvertKph(s.SpeedKph, speedUnits)
		}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build %s line: %w", kind, err)
	}
	line.Color = seriesColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(string(kind), line)
	p.Legend.Top = true

	last := run.Samples[len(run.Samples)-1]
	switch kind {
	case PlotPosition:
		p.Title.Text = fmt.Sprintf("Position, run %s", run.RunID)
		p.Y.Label.Text = "m"
		checkpoint := plotter.NewFunction(func(float64) float64 { return run.Params.TotalDistanceM })
		checkpoint.Color = limitColor
		checkpoint.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		checkpoint.XMin, checkpoint.XMax = 0, last.TimeS
		p.Add(checkpoint)
		p.Y.Max = math.Max(p.Y.Max, run.Params.TotalDistanceM*1.05)
		p.Legend.Add("checkpoint", checkpoint)
	default:
		p.Title.Text = fmt.Sprintf("Speed, run %s", run.RunID)
		p.Y.Label.Text = speedUnits
		p.Y.Min = 0
		if limit, err := physics.SpeedLimit(run.Params.Zone); err == nil {
			y := units.ConvertKph(limit, speedUnits)
			limitLine := plotter.NewFunction(func(float64) float64 { return y })
			limitLine.Color = limitColor
			limitLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			limitLine.XMin, limitLine.XMax = 0, last.TimeS
			p.Add(limitLine)
			p.Y.Max = math.Max(p.Y.Max, y*1.1)
			p.Legend.Add(fmt.Sprintf("%s limit", run.Params.Zone), limitLine)
		}
	}

	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
