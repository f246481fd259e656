package visualize

import (
	"fmt"
	"path/filepath"
	"time"

	"mboflow/internal/plot"
	"mboflow/logger"
	"mboflow/reader"
)

// RenderOptions names and sizes the output images.
type RenderOptions struct {
	OutputDir string
	Prefix    string
	Width     int
	Height    int
}

func (o RenderOptions) base(suffix string) string {
	prefix := o.Prefix
	if prefix == "" {
		prefix = DefaultOutputPrefix
	}
	return filepath.Join(o.OutputDir, prefix+suffix)
}

func (r *Result) priceUnit() string {
	if r.Scaler.Scaled() {
		return "Price"
	}
	return "Price (raw)"
}

func (r *Result) timeAxis() []float64 {
	xs := make([]float64, len(r.TimeSeries))
	for i, p := range r.TimeSeries {
		xs[i] = float64(p.TsEvent)
	}
	return xs
}

func (r *Result) column(get func(TimePoint) float64) []float64 {
	ys := make([]float64, len(r.TimeSeries))
	for i, p := range r.TimeSeries {
		ys[i] = get(p)
	}
	return ys
}

func (r *Result) heatPoints() []plot.HeatPoint {
	var pts []plot.HeatPoint
	for _, s := range r.Heatmap {
		for _, l := range s.Levels {
			pts = append(pts, plot.HeatPoint{
				X:     float64(s.TsEvent),
				Price: r.Scaler.Float(l.Price),
				Qty:   float64(l.Qty),
			})
		}
	}
	return pts
}

// Charts lays out the four report charts keyed by file suffix.
func (r *Result) Charts(opts RenderOptions) map[string]plot.TimeChart {
	xs := r.timeAxis()
	charts := map[string]plot.TimeChart{
		"": {
			Title: fmt.Sprintf("Order Book Prices (instrument %d)", r.Instrument),
			YName: r.priceUnit(),
			Heat:  r.heatPoints(),
			Lines: []plot.Line{
				{Name: "Best Bid", X: xs, Y: r.column(func(p TimePoint) float64 { return p.BestBid }), Color: plot.Color(2)},
				{Name: "Best Ask", X: xs, Y: r.column(func(p TimePoint) float64 { return p.BestAsk }), Color: plot.Color(3)},
				{Name: "Mid Price", X: xs, Y: r.column(func(p TimePoint) float64 { return p.Mid }), Color: plot.Color(0), Dashed: true},
			},
		},
		"_spread": {
			Title: "Bid-Ask Spread",
			YName: "Spread",
			Lines: []plot.Line{
				{Name: "Spread", X: xs, Y: r.column(func(p TimePoint) float64 { return p.Spread }), Color: plot.Color(4)},
			},
		},
		"_depth": {
			Title: "Total Resting Quantity",
			YName: "Quantity",
			Lines: []plot.Line{
				{Name: "Total Bid Qty", X: xs, Y: r.column(func(p TimePoint) float64 { return float64(p.TotalBid) }), Color: plot.Color(2)},
				{Name: "Total Ask Qty", X: xs, Y: r.column(func(p TimePoint) float64 { return float64(p.TotalAsk) }), Color: plot.Color(3)},
			},
		},
	}
	if len(r.CVD) > 0 {
		cx := make([]float64, 0, len(r.CVD)+1)
		cy := make([]float64, 0, len(r.CVD)+1)
		cx = append(cx, float64(r.CVD[0].TsEvent))
		cy = append(cy, 0)
		for _, p := range r.CVD {
			cx = append(cx, float64(p.TsEvent))
			cy = append(cy, float64(p.Value))
		}
		charts["_cvd"] = plot.TimeChart{
			Title: "Cumulative Volume Delta",
			YName: "CVD",
			Lines: []plot.Line{{Name: "CVD", X: cx, Y: cy, Color: plot.Color(1)}},
		}
	}
	for k, c := range charts {
		c.Width, c.Height = opts.Width, opts.Height
		charts[k] = c
	}
	return charts
}

var chartOrder = []string{"", "_spread", "_depth", "_cvd"}

// Render writes every chart that has data and returns the written paths.
func Render(r *Result, opts RenderOptions) ([]string, error) {
	log := logger.GetLogger().WithComponent("visualize").WithFields(logger.Fields{
		"output_dir": opts.OutputDir,
		"prefix":     opts.Prefix,
	})
	charts := r.Charts(opts)

	var paths []string
	for _, suffix := range chartOrder {
		c, ok := charts[suffix]
		if !ok {
			log.WithFields(logger.Fields{"chart": "cvd"}).Warn("no trades found, skipping cumulative volume delta chart")
			continue
		}
		written, err := c.Render(opts.base(suffix))
		if err != nil {
			return paths, err
		}
		if len(written) == 0 {
			log.WithFields(logger.Fields{"chart": opts.base(suffix)}).Warn("no valid top of book captured, skipping chart")
		}
		paths = append(paths, written...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: nothing to plot", ErrNoMBOData)
	}
	return paths, nil
}

// VisualizeFile loads a DBN file, rebuilds its book and renders the charts.
func VisualizeFile(path string, opts Options, ropts RenderOptions) ([]string, error) {
	log := logger.GetLogger().WithComponent("visualize").WithFields(logger.Fields{"path": path})
	start := time.Now()

	file, err := reader.LoadMboMessages(path)
	if err != nil {
		return nil, err
	}
	res, err := Build(file.Messages, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	paths, err := Render(res, ropts)
	if err != nil {
		return paths, err
	}
	logger.LogPerformanceEntry(log, "visualize", "visualize_file", time.Since(start), logger.Fields{
		"rows":   res.Rows,
		"charts": len(paths) / 2,
	})
	return paths, nil
}
