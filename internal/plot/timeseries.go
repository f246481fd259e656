package plot

import (
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Line is a series plotted against unix nanosecond timestamps.
type Line struct {
	Name   string
	X      []float64
	Y      []float64
	Color  drawing.Color
	Dashed bool
}

// HeatPoint is a resting quantity at a price at one instant.
type HeatPoint struct {
	X     float64
	Price float64
	Qty   float64
}

// TimeChart describes a chart of lines and optional heat points over time.
type TimeChart struct {
	Title  string
	YName  string
	Lines  []Line
	Heat   []HeatPoint
	Width  int
	Height int
}

func lineSeries(l Line) chart.ContinuousSeries {
	style := chart.Style{
		StrokeColor: l.Color,
		StrokeWidth: 1.5,
	}
	if l.Dashed {
		style.StrokeDashArray = []float64{6, 3}
	}
	return chart.ContinuousSeries{Name: l.Name, XValues: l.X, YValues: l.Y, Style: style}
}

// heatSeries draws each point as a dot coloured by quantity on a viridis
// scale.
func heatSeries(points []HeatPoint) chart.ContinuousSeries {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	qs := make([]float64, len(points))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		xs[i], ys[i], qs[i] = p.X, p.Price, p.Qty
		lo = math.Min(lo, p.Qty)
		hi = math.Max(hi, p.Qty)
	}
	if hi <= lo {
		hi = lo + 1
	}
	return chart.ContinuousSeries{
		Name:    "Resting quantity",
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    2,
			DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
				return chart.Viridis(qs[index], lo, hi).WithAlpha(160)
			},
		},
	}
}

// Build assembles the go-chart definition. Empty lines are skipped.
func (tc TimeChart) Build() (chart.Chart, bool) {
	var (
		series []chart.Series
		xs     [][]float64
		ys     [][]float64
	)
	if len(tc.Heat) > 0 {
		hs := heatSeries(tc.Heat)
		series = append(series, hs)
		xs = append(xs, hs.XValues)
		ys = append(ys, hs.YValues)
	}
	for _, l := range tc.Lines {
		if len(l.X) == 0 || len(l.X) != len(l.Y) {
			continue
		}
		series = append(series, lineSeries(l))
		xs = append(xs, l.X)
		ys = append(ys, l.Y)
	}
	if len(series) == 0 {
		return chart.Chart{}, false
	}

	xlo, xhi := bounds(xs...)
	ylo, yhi := bounds(ys...)
	width, height := size(tc.Width, tc.Height)
	c := chart.Chart{
		Title:      tc.Title,
		Width:      width,
		Height:     height,
		Background: background(),
		XAxis: chart.XAxis{
			Name:           "Time (UTC)",
			Range:          padRange(xlo, xhi),
			ValueFormatter: nanosFormatter,
			GridMajorStyle: gridStyle(),
		},
		YAxis: chart.YAxis{
			Name:           tc.YName,
			Range:          padRange(ylo, yhi),
			ValueFormatter: floatFormatter,
			GridMajorStyle: gridStyle(),
		},
		Series: series,
	}
	if len(series) > 1 {
		c.Elements = []chart.Renderable{chart.Legend(&c)}
	}
	return c, true
}

// Render builds and saves the chart as base.png and base.svg. It returns
// no paths when there is nothing to draw.
func (tc TimeChart) Render(base string) ([]string, error) {
	c, ok := tc.Build()
	if !ok {
		return nil, nil
	}
	return Save(c, base)
}
