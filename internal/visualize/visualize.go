// Package visualize rebuilds a price aggregated order book from MBO
// events and renders its prices, spread, depth and volume delta.
package visualize

import (
	"errors"

	"github.com/shopspring/decimal"

	"mboflow/logger"
	"mboflow/models"
)

// ErrNoMBOData is returned when filtering leaves nothing to plot.
var ErrNoMBOData = errors.New("no MBO data to visualize")

const (
	DefaultMaxTimeSeriesPoints = 1000
	DefaultMaxHeatmapSnapshots = 1000
	DefaultPriceScaleThreshold = 1_000_000_000
	DefaultOutputPrefix        = "order_book_visualization"
)

// Options bounds how many points are captured.
type Options struct {
	MaxTimeSeriesPoints int
	MaxHeatmapSnapshots int
	// PriceScaleThreshold is the raw price above which prices are treated
	// as fixed point and scaled by 1e-9.
	PriceScaleThreshold float64
}

// DefaultOptions matches the capture limits used for generated data.
func DefaultOptions() Options {
	return Options{
		MaxTimeSeriesPoints: DefaultMaxTimeSeriesPoints,
		MaxHeatmapSnapshots: DefaultMaxHeatmapSnapshots,
		PriceScaleThreshold: DefaultPriceScaleThreshold,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTimeSeriesPoints <= 0 {
		o.MaxTimeSeriesPoints = d.MaxTimeSeriesPoints
	}
	if o.MaxHeatmapSnapshots <= 0 {
		o.MaxHeatmapSnapshots = d.MaxHeatmapSnapshots
	}
	if o.PriceScaleThreshold <= 0 {
		o.PriceScaleThreshold = d.PriceScaleThreshold
	}
	return o
}

// Filter keeps MBO records of the first instrument seen.
func Filter(msgs []models.MboMsg) ([]models.MboMsg, uint32, error) {
	var (
		out        []models.MboMsg
		instrument uint32
		seen       bool
	)
	for _, m := range msgs {
		if m.Header.RType != models.RTypeMBO {
			continue
		}
		if !seen {
			instrument, seen = m.Header.InstrumentID, true
		}
		if m.Header.InstrumentID != instrument {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, 0, ErrNoMBOData
	}
	return out, instrument, nil
}

// Scaler converts raw prices to display units.
type Scaler struct {
	exp int32
}

// NewScaler scales by 1e-9 when the largest raw price exceeds threshold.
func NewScaler(msgs []models.MboMsg, threshold float64) Scaler {
	var hi models.Price
	for _, m := range msgs {
		hi = max(hi, m.Price)
	}
	if float64(hi) > threshold {
		return Scaler{exp: -9}
	}
	return Scaler{}
}

// Scaled reports whether prices are divided by 1e9.
func (s Scaler) Scaled() bool { return s.exp != 0 }

// Decimal is the exact display value of a raw price.
func (s Scaler) Decimal(p models.Price) decimal.Decimal { return decimal.New(p, s.exp) }

func (s Scaler) Float(p models.Price) float64 { return s.Decimal(p).InexactFloat64() }

// TimePoint is the top of book captured at one event.
type TimePoint struct {
	TsEvent  uint64
	BestBid  float64
	BestAsk  float64
	Mid      float64
	Spread   float64
	TotalBid int64
	TotalAsk int64
}

// Snapshot is every resting level captured at one event.
type Snapshot struct {
	TsEvent uint64
	Levels  []LevelQty
}

// CVDPoint is the volume delta after a trade or fill.
type CVDPoint struct {
	TsEvent uint64
	Value   int64
}

// Result is everything captured while replaying one file.
type Result struct {
	Instrument uint32
	Rows       int
	Scaler     Scaler
	TimeSeries []TimePoint
	Heatmap    []Snapshot
	CVD        []CVDPoint
}

func interval(rows, limit int) int {
	if rows <= limit {
		return 1
	}
	return rows / limit
}

// Build replays msgs and captures the time series, heatmap snapshots and
// volume delta. Time series points need both sides with best ask above
// best bid; heatmap snapshots need either side.
func Build(msgs []models.MboMsg, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	data, instrument, err := Filter(msgs)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger().WithComponent("visualize")
	if len(data) < len(msgs) {
		log.WithFields(logger.Fields{
			"instrument_id": instrument,
			"kept":          len(data),
			"dropped":       len(msgs) - len(data),
		}).Info("filtered records to the first MBO instrument")
	}

	res := &Result{
		Instrument: instrument,
		Rows:       len(data),
		Scaler:     NewScaler(data, opts.PriceScaleThreshold),
	}
	if res.Scaler.Scaled() {
		log.Info("scaling prices by 1e-9")
	}

	tsEvery := interval(len(data), opts.MaxTimeSeriesPoints)
	heatEvery := interval(len(data), opts.MaxHeatmapSnapshots)
	last := len(data) - 1

	book := NewBook()
	for i, m := range data {
		trades := book.Trades()
		book.Apply(m)
		if book.Trades() != trades {
			res.CVD = append(res.CVD, CVDPoint{TsEvent: m.Header.TsEvent, Value: book.CVD()})
		}

		if i%tsEvery == 0 || i == last {
			if p, ok := res.timePoint(book, m.Header.TsEvent); ok {
				res.TimeSeries = append(res.TimeSeries, p)
			}
		}
		if (i%heatEvery == 0 || i == last) && !book.Empty() {
			res.Heatmap = append(res.Heatmap, Snapshot{TsEvent: m.Header.TsEvent, Levels: book.Levels()})
		}
	}

	log.WithFields(logger.Fields{
		"rows":        res.Rows,
		"time_points": len(res.TimeSeries),
		"snapshots":   len(res.Heatmap),
		"trades":      len(res.CVD),
	}).Info("order book processing finished")
	return res, nil
}

func (r *Result) timePoint(book *Book, ts uint64) (TimePoint, bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk || ask <= bid {
		return TimePoint{}, false
	}
	b, a := r.Scaler.Decimal(bid), r.Scaler.Decimal(ask)
	totalBid, totalAsk := book.Totals()
	return TimePoint{
		TsEvent:  ts,
		BestBid:  b.InexactFloat64(),
		BestAsk:  a.InexactFloat64(),
		Mid:      b.Add(a).Div(decimal.NewFromInt(2)).InexactFloat64(),
		Spread:   a.Sub(b).InexactFloat64(),
		TotalBid: totalBid,
		TotalAsk: totalAsk,
	}, true
}
