package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mboflow/internal/stats"
)

func TestDecadeTicks(t *testing.T) {
	ticks := DecadeTicks(250)
	require.Len(t, ticks, 5)
	assert.Equal(t, "0", ticks[0].Label)
	assert.Equal(t, "1", ticks[1].Label)
	assert.Equal(t, "1000", ticks[4].Label)
	assert.InDelta(t, LogCount(100), ticks[3].Value, 1e-12)

	assert.Len(t, DecadeTicks(1), 2)
}

func TestLogCount(t *testing.T) {
	assert.Equal(t, 0.0, LogCount(0))
	assert.InDelta(t, 1.0, LogCount(9), 1e-12)
}

func TestPadRange(t *testing.T) {
	r := padRange(5, 5)
	assert.Less(t, r.Min, 5.0)
	assert.Greater(t, r.Max, 5.0)

	r = padRange(0, 100)
	assert.InDelta(t, -2, r.Min, 1e-9)
	assert.InDelta(t, 102, r.Max, 1e-9)
}

func assertNonEmpty(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), p)
	}
}

func TestLatencyCharts(t *testing.T) {
	dir := t.TempDir()
	series := []stats.Series{
		{Label: "FlashCrash.dbnOrderBook", Messages: 6, Durations: []int64{100, 120, 130, 400, 90, 95}},
		{Label: "FlashCrash.dbnFlatOrderBook", Messages: 4, Durations: []int64{80, 85, 70, 2000}},
	}

	paths, err := LatencyCharts(series, dir, LatencyOptions{BinWidth: 30, Width: 640, Height: 320})
	require.NoError(t, err)
	require.Len(t, paths, 6)

	assert.Equal(t, filepath.Join(dir, CombinedBaseName+".png"), paths[0])
	assert.Equal(t, filepath.Join(dir, CombinedBaseName+".svg"), paths[1])
	assert.Equal(t, filepath.Join(dir, "FlashCrash.dbnOrderBook_distribution.png"), paths[2])
	assert.Equal(t, filepath.Join(dir, "FlashCrash.dbnFlatOrderBook_distribution.svg"), paths[5])
	assertNonEmpty(t, paths...)
}

func TestLatencyChartsSingleValue(t *testing.T) {
	paths, err := LatencyCharts([]stats.Series{{Label: "x", Durations: []int64{42}}}, t.TempDir(), LatencyOptions{})
	require.NoError(t, err)
	assertNonEmpty(t, paths...)
}

func TestLatencyChartsBoundsOutliers(t *testing.T) {
	series := []stats.Series{{Label: "OrderBook", Durations: []int64{40, 55, 3_000_000_000}}}
	paths, err := LatencyCharts(series, t.TempDir(), LatencyOptions{BinWidth: 30, Width: 480, Height: 240})
	require.NoError(t, err)
	require.Len(t, paths, 4)
	assertNonEmpty(t, paths...)

	bins, err := stats.HistogramFrom(series[0].Durations, 40, 30)
	require.NoError(t, err)
	step := stepSeries(histogram{label: "OrderBook", bins: bins})
	assert.Len(t, step.XValues, 2*stats.MaxBins+2)
}

func TestLatencyChartsEmpty(t *testing.T) {
	_, err := LatencyCharts([]stats.Series{{Label: "x"}}, t.TempDir(), LatencyOptions{})
	assert.ErrorIs(t, err, stats.ErrNoDurations)
}

func TestTimeChartRender(t *testing.T) {
	base := filepath.Join(t.TempDir(), "vis", "book")
	tc := TimeChart{
		Title: "Order Book",
		YName: "Price",
		Lines: []Line{
			{Name: "Best Bid", X: []float64{1e18, 1e18 + 1e6}, Y: []float64{99.5, 99.6}, Color: Color(2)},
			{Name: "Best Ask", X: []float64{1e18, 1e18 + 1e6}, Y: []float64{100.5, 100.4}, Color: Color(3)},
			{Name: "Mid", X: []float64{1e18, 1e18 + 1e6}, Y: []float64{100, 100}, Color: Color(0), Dashed: true},
		},
		Heat: []HeatPoint{
			{X: 1e18, Price: 99.5, Qty: 10},
			{X: 1e18, Price: 100.5, Qty: 40},
			{X: 1e18 + 1e6, Price: 99.6, Qty: 5},
		},
		Width:  640,
		Height: 320,
	}
	paths, err := tc.Render(base)
	require.NoError(t, err)
	require.Equal(t, []string{base + ".png", base + ".svg"}, paths)
	assertNonEmpty(t, paths...)
}

func TestTimeChartNothingToDraw(t *testing.T) {
	_, ok := TimeChart{Lines: []Line{{Name: "empty"}}}.Build()
	assert.False(t, ok)

	paths, err := TimeChart{}.Render(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}
