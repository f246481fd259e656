package plot

import (
	"fmt"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"mboflow/internal/stats"
	"mboflow/logger"
)

const (
	CombinedTitle    = "Distribution of Duration Measurements per OrderBook Implementation"
	SingleTitleFmt   = "Distribution of Duration Measurements for %s"
	DurationAxisName = "Duration (Nanoseconds)"
	CountAxisName    = "Count (Log Scale)"
	CombinedBaseName = "duration_distribution_combined"
)

// LatencyOptions controls histogram rendering.
type LatencyOptions struct {
	BinWidth int64
	Width    int
	Height   int
}

// histogram is one binned series ready to draw.
type histogram struct {
	label string
	color drawing.Color
	bins  []stats.Bin
}

// stepSeries draws bins as a filled step outline starting and ending at zero.
func stepSeries(h histogram) chart.ContinuousSeries {
	xs := make([]float64, 0, 2*len(h.bins)+2)
	ys := make([]float64, 0, 2*len(h.bins)+2)
	xs = append(xs, float64(h.bins[0].Start))
	ys = append(ys, 0)
	for _, b := range h.bins {
		y := LogCount(b.Count)
		xs = append(xs, float64(b.Start), float64(b.End()))
		ys = append(ys, y, y)
	}
	xs = append(xs, float64(h.bins[len(h.bins)-1].End()))
	ys = append(ys, 0)

	return chart.ContinuousSeries{
		Name:    h.label,
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeColor: h.color,
			StrokeWidth: 2,
			FillColor:   h.color.WithAlpha(96),
		},
	}
}

func histogramChart(title string, hists []histogram, width, height int, legend bool) chart.Chart {
	series := make([]chart.Series, 0, len(hists))
	lo, hi := float64(hists[0].bins[0].Start), float64(hists[0].bins[0].End())
	maxCount := 1
	for _, h := range hists {
		series = append(series, stepSeries(h))
		for _, b := range h.bins {
			lo = min(lo, float64(b.Start))
			hi = max(hi, float64(b.End()))
			maxCount = max(maxCount, b.Count)
		}
	}
	ticks := DecadeTicks(maxCount)

	width, height = size(width, height)
	c := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: background(),
		XAxis: chart.XAxis{
			Name:           DurationAxisName,
			Range:          padRange(lo, hi),
			ValueFormatter: floatFormatter,
			GridMajorStyle: gridStyle(),
		},
		YAxis: chart.YAxis{
			Name:           CountAxisName,
			Range:          &chart.ContinuousRange{Min: 0, Max: ticks[len(ticks)-1].Value * 1.05},
			Ticks:          ticks,
			GridMajorStyle: gridStyle(),
		},
		Series: series,
	}
	if legend {
		c.Elements = []chart.Renderable{chart.Legend(&c)}
	}
	return c
}

func warnOverflow(label string, bins []stats.Bin) {
	last := bins[len(bins)-1]
	if !last.Overflow {
		return
	}
	logger.GetLogger().WithComponent("plot").WithFields(logger.Fields{
		"implementation": label,
		"overflow_start": last.Start,
		"overflow_count": last.Count,
		"max_bins":       stats.MaxBins,
	}).Warn("latency histogram truncated; tail durations merged into the last bin")
}

// LatencyCharts renders the combined histogram of every series plus one
// histogram per series into dir. Series sharing a label are merged. All
// series in the combined chart share bin edges.
func LatencyCharts(series []stats.Series, dir string, opts LatencyOptions) ([]string, error) {
	grouped := stats.Group(series)
	var (
		start   int64
		started bool
	)
	for _, s := range grouped {
		for _, d := range s.Durations {
			if !started || d < start {
				start, started = d, true
			}
		}
	}
	if !started {
		return nil, stats.ErrNoDurations
	}

	var (
		hists  []histogram
		sample []stats.Series
	)
	for _, s := range grouped {
		if len(s.Durations) == 0 {
			continue
		}
		bins, err := stats.HistogramFrom(s.Durations, start, opts.BinWidth)
		if err != nil {
			return nil, err
		}
		warnOverflow(s.Label, bins)
		hists = append(hists, histogram{label: s.Label, color: Color(len(hists)), bins: bins})
		sample = append(sample, s)
	}

	var paths []string
	combined := histogramChart(CombinedTitle, hists, opts.Width, opts.Height, true)
	written, err := Save(combined, filepath.Join(dir, CombinedBaseName))
	paths = append(paths, written...)
	if err != nil {
		return paths, err
	}

	for i, h := range hists {
		bins, err := stats.Histogram(sample[i].Durations, opts.BinWidth)
		if err != nil {
			return paths, err
		}
		h.bins = bins
		single := histogramChart(fmt.Sprintf(SingleTitleFmt, h.label), []histogram{h}, opts.Width, opts.Height, false)
		written, err := Save(single, filepath.Join(dir, h.label+"_distribution"))
		paths = append(paths, written...)
		if err != nil {
			return paths, err
		}
	}
	return paths, nil
}
