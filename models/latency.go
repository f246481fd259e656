package models

// LatencyRun holds the per message processing latency of one book
// implementation over one input file.
type LatencyRun struct {
	Source         string  `json:"source"`
	Implementation string  `json:"implementation"`
	Messages       int     `json:"messages"`
	Durations      []int64 `json:"durations_ns"`
	Total          int64   `json:"total_ns"`
}

// Label is the first CSV column: the file name followed by the implementation.
func (r LatencyRun) Label() string {
	return r.Source + r.Implementation
}

// LatencySample is a single flattened measurement used for columnar export.
type LatencySample struct {
	Label      string
	Index      int
	DurationNs int64
}
