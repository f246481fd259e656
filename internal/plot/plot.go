// Package plot renders report charts to PNG and SVG with go-chart.
package plot

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"mboflow/logger"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 800
)

// Palette follows the usual ten-colour categorical cycle.
var Palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

// Color returns the i-th palette entry, wrapping around.
func Color(i int) drawing.Color { return Palette[i%len(Palette)] }

type format struct {
	ext      string
	provider chart.RendererProvider
}

var formats = []format{
	{ext: ".png", provider: chart.PNG},
	{ext: ".svg", provider: chart.SVG},
}

// Save renders c next to base as base.png and base.svg and returns the
// written paths.
func Save(c chart.Chart, base string) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		var buf bytes.Buffer
		if err := c.Render(f.provider, &buf); err != nil {
			return paths, fmt.Errorf("failed to render %s%s: %w", filepath.Base(base), f.ext, err)
		}
		p := base + f.ext
		if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", p, err)
		}
		logger.IncrementArtifact(int64(buf.Len()))
		paths = append(paths, p)
	}
	logger.GetLogger().WithComponent("plot").WithFields(logger.Fields{
		"title": c.Title,
		"paths": paths,
	}).Info("plot saved")
	return paths, nil
}

// gridStyle is the dashed light grid drawn behind every chart.
func gridStyle() chart.Style {
	return chart.Style{
		StrokeColor:     drawing.ColorFromHex("b0b0b0").WithAlpha(153),
		StrokeWidth:     1,
		StrokeDashArray: []float64{5, 5},
	}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}}
}

func size(width, height int) (int, int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return width, height
}

// padRange widens a degenerate range so the chart can be drawn.
func padRange(lo, hi float64) *chart.ContinuousRange {
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || math.IsNaN(lo) || math.IsNaN(hi) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if hi <= lo {
		d := math.Max(math.Abs(lo)*0.01, 1)
		return &chart.ContinuousRange{Min: lo - d, Max: hi + d}
	}
	m := (hi - lo) * 0.02
	return &chart.ContinuousRange{Min: lo - m, Max: hi + m}
}

func bounds(values ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// LogCount maps a bin count onto the log axis; empty bins sit at zero.
func LogCount(count int) float64 { return math.Log10(1 + float64(count)) }

// DecadeTicks labels powers of ten up to maxCount on a LogCount axis.
func DecadeTicks(maxCount int) []chart.Tick {
	ticks := []chart.Tick{{Value: 0, Label: "0"}}
	for p := int64(1); ; p *= 10 {
		ticks = append(ticks, chart.Tick{Value: math.Log10(1 + float64(p)), Label: strconv.FormatInt(p, 10)})
		if p >= int64(maxCount) {
			break
		}
	}
	return ticks
}

// nanosFormatter renders unix nanosecond axis values as wall clock times.
func nanosFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return time.Unix(0, int64(f)).UTC().Format("15:04:05.000")
}

func floatFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return decimal.NewFromFloat(f).Round(6).String()
}
