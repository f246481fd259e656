// Package stats loads benchmark latency results and reduces them to
// histograms and summary figures.
package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrNoDurations is returned when a result set has no measurements.
var ErrNoDurations = errors.New("no duration data found")

// DefaultBinWidth is the histogram bin width in nanoseconds.
const DefaultBinWidth int64 = 30

// MaxBins caps the number of bins in one histogram. Durations past the
// last bin are counted in it.
const MaxBins = 4096

// Series is one row of the benchmark CSV.
type Series struct {
	Label     string
	Messages  int
	Durations []int64
	Total     int64
}

// LoadLatencyCSV reads a header-less benchmark CSV. Each row is
// label, message count, one duration per message, and the total.
func LoadLatencyCSV(path string) ([]Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open latency csv: %w", err)
	}
	defer f.Close()
	return ReadLatencyCSV(f)
}

// ReadLatencyCSV parses benchmark rows from r.
func ReadLatencyCSV(r io.Reader) ([]Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var out []Series
	total := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse latency csv: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("latency csv line %d: expected at least 3 columns, got %d", line, len(rec))
		}

		s := Series{Label: rec[0]}
		if s.Messages, err = strconv.Atoi(strings.TrimSpace(rec[1])); err != nil {
			return nil, fmt.Errorf("latency csv line %d: bad message count: %w", line, err)
		}
		if s.Total, err = parseInt(rec[len(rec)-1]); err != nil {
			return nil, fmt.Errorf("latency csv line %d: bad total: %w", line, err)
		}
		s.Durations = make([]int64, 0, len(rec)-3)
		for i, field := range rec[2 : len(rec)-1] {
			d, err := parseInt(field)
			if err != nil {
				return nil, fmt.Errorf("latency csv line %d column %d: %w", line, i+3, err)
			}
			s.Durations = append(s.Durations, d)
		}
		total += len(s.Durations)
		out = append(out, s)
	}
	if total == 0 {
		return nil, ErrNoDurations
	}
	return out, nil
}

// parseInt accepts integers and integral floats such as "1.2e3".
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// Group merges series that share a label, keeping first-seen order. Each
// input file contributes one row per implementation.
func Group(series []Series) []Series {
	idx := map[string]int{}
	var out []Series
	for _, s := range series {
		i, ok := idx[s.Label]
		if !ok {
			idx[s.Label] = len(out)
			out = append(out, Series{Label: s.Label})
			i = len(out) - 1
		}
		out[i].Messages += s.Messages
		out[i].Total += s.Total
		out[i].Durations = append(out[i].Durations, s.Durations...)
	}
	return out
}

// Bin is one histogram bucket covering [Start, Start+Width). An overflow
// bin also counts every duration at or above End.
type Bin struct {
	Start    int64
	Width    int64
	Count    int
	Overflow bool
}

// End is the exclusive upper bound of the bin.
func (b Bin) End() int64 { return b.Start + b.Width }

// Histogram buckets durations into bins of binWidth starting at the
// smallest value.
func Histogram(durations []int64, binWidth int64) ([]Bin, error) {
	if len(durations) == 0 {
		return nil, ErrNoDurations
	}
	lo := durations[0]
	for _, d := range durations {
		lo = min(lo, d)
	}
	return HistogramFrom(durations, lo, binWidth)
}

// HistogramFrom buckets durations into bins anchored at start, so that
// several series can share bin edges. Values below start fall in the
// first bin. At most MaxBins bins are returned; when the range needs
// more, the last one is marked Overflow and absorbs the tail.
func HistogramFrom(durations []int64, start, binWidth int64) ([]Bin, error) {
	if len(durations) == 0 {
		return nil, ErrNoDurations
	}
	if binWidth <= 0 {
		binWidth = DefaultBinWidth
	}
	hi := durations[0]
	for _, d := range durations {
		hi = max(hi, d)
	}
	span := int64(0)
	if hi > start {
		span = (hi - start) / binWidth
	}
	n, overflow := int(span)+1, false
	if span >= MaxBins {
		n, overflow = MaxBins, true
	}

	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Start: start + int64(i)*binWidth, Width: binWidth}
	}
	bins[n-1].Overflow = overflow
	for _, d := range durations {
		i := 0
		if d > start {
			i = int(min((d-start)/binWidth, int64(n-1)))
		}
		bins[i].Count++
	}
	return bins, nil
}

// Summary describes a latency distribution in nanoseconds.
type Summary struct {
	Count int
	Min   int64
	Max   int64
	Mean  float64
	P50   int64
	P90   int64
	P99   int64
}

// Summarize computes order statistics over durations. The input is not
// modified.
func Summarize(durations []int64) (Summary, error) {
	if len(durations) == 0 {
		return Summary{}, ErrNoDurations
	}
	sorted := make([]int64, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum float64
	for _, d := range sorted {
		sum += float64(d)
	}
	return Summary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   Percentile(sorted, 50),
		P90:   Percentile(sorted, 90),
		P99:   Percentile(sorted, 99),
	}, nil
}

// Percentile returns the nearest-rank percentile of an ascending slice.
func Percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}
