package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `FlashCrash.dbnOrderBook,4,100,130,95,400,725
FlashCrash.dbnFlatOrderBook,4,80,90,85,70,325
`

func TestReadLatencyCSV(t *testing.T) {
	series, err := ReadLatencyCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "FlashCrash.dbnOrderBook", series[0].Label)
	assert.Equal(t, 4, series[0].Messages)
	assert.Equal(t, []int64{100, 130, 95, 400}, series[0].Durations)
	assert.Equal(t, int64(725), series[0].Total)
	assert.Equal(t, []int64{80, 90, 85, 70}, series[1].Durations)
}

func TestReadLatencyCSVFloats(t *testing.T) {
	series, err := ReadLatencyCSV(strings.NewReader("x,2,1.5e2,30.0,180\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{150, 30}, series[0].Durations)
}

func TestReadLatencyCSVErrors(t *testing.T) {
	_, err := ReadLatencyCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoDurations)

	_, err = ReadLatencyCSV(strings.NewReader("x,0,0\n"))
	assert.ErrorIs(t, err, ErrNoDurations)

	_, err = ReadLatencyCSV(strings.NewReader("x,1\n"))
	assert.Error(t, err)

	_, err = ReadLatencyCSV(strings.NewReader("x,1,abc,3\n"))
	assert.Error(t, err)
}

func TestLoadLatencyCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchmark_results.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	series, err := LoadLatencyCSV(path)
	require.NoError(t, err)
	assert.Len(t, series, 2)

	_, err = LoadLatencyCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGroup(t *testing.T) {
	grouped := Group([]Series{
		{Label: "a", Messages: 1, Durations: []int64{1}, Total: 1},
		{Label: "b", Messages: 1, Durations: []int64{2}, Total: 2},
		{Label: "a", Messages: 2, Durations: []int64{3, 4}, Total: 7},
	})
	require.Len(t, grouped, 2)
	assert.Equal(t, "a", grouped[0].Label)
	assert.Equal(t, 3, grouped[0].Messages)
	assert.Equal(t, []int64{1, 3, 4}, grouped[0].Durations)
	assert.Equal(t, int64(8), grouped[0].Total)
}

func TestHistogram(t *testing.T) {
	bins, err := Histogram([]int64{100, 129, 130, 160, 161, 250}, 30)
	require.NoError(t, err)
	require.Len(t, bins, 6)

	assert.Equal(t, Bin{Start: 100, Width: 30, Count: 2}, bins[0])
	assert.Equal(t, Bin{Start: 130, Width: 30, Count: 1}, bins[1])
	assert.Equal(t, 2, bins[2].Count)
	assert.Equal(t, 0, bins[3].Count)
	assert.Equal(t, int64(250), bins[5].Start)
	assert.Equal(t, int64(280), bins[5].End())

	total := 0
	for _, b := range bins {
		total += b.Count
	}
	assert.Equal(t, 6, total)
}

func TestHistogramFromSharedStart(t *testing.T) {
	bins, err := HistogramFrom([]int64{90, 95}, 60, 30)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, 0, bins[0].Count)
	assert.Equal(t, 2, bins[1].Count)

	bins, err = HistogramFrom([]int64{10}, 60, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBinWidth, bins[0].Width)
	assert.Equal(t, 1, bins[0].Count)
}

func TestHistogramCapsBinsWithOverflow(t *testing.T) {
	bins, err := HistogramFrom([]int64{40, 55, 3_000_000_000}, 40, 30)
	require.NoError(t, err)
	require.Len(t, bins, MaxBins)

	last := bins[MaxBins-1]
	assert.True(t, last.Overflow)
	assert.Equal(t, int64(40+30*(MaxBins-1)), last.Start)
	assert.Equal(t, 1, last.Count)
	assert.Equal(t, 2, bins[0].Count)
	assert.False(t, bins[0].Overflow)

	bins, err = HistogramFrom([]int64{0, 30*MaxBins - 1}, 0, 30)
	require.NoError(t, err)
	require.Len(t, bins, MaxBins)
	assert.False(t, bins[MaxBins-1].Overflow)
	assert.Equal(t, 1, bins[MaxBins-1].Count)
}

func TestHistogramEmpty(t *testing.T) {
	_, err := Histogram(nil, 30)
	assert.ErrorIs(t, err, ErrNoDurations)
}

func TestSummarize(t *testing.T) {
	durations := make([]int64, 0, 100)
	for i := 100; i >= 1; i-- {
		durations = append(durations, int64(i))
	}
	s, err := Summarize(durations)
	require.NoError(t, err)

	assert.Equal(t, 100, s.Count)
	assert.Equal(t, int64(1), s.Min)
	assert.Equal(t, int64(100), s.Max)
	assert.InDelta(t, 50.5, s.Mean, 1e-9)
	assert.Equal(t, int64(50), s.P50)
	assert.Equal(t, int64(90), s.P90)
	assert.Equal(t, int64(99), s.P99)
	assert.Equal(t, int64(100), durations[0], "input must not be reordered")

	_, err = Summarize(nil)
	assert.ErrorIs(t, err, ErrNoDurations)
}
