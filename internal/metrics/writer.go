package metrics

import "mboflow/logger"

// WriterStats are the totals a sink reports when it closes.
type WriterStats struct {
	RecordsWritten int64
	FilesWritten   int64
	BytesWritten   int64
	ErrorsCount    int64
}

// ErrorRate is the share of attempted files that failed.
func (s WriterStats) ErrorRate() float64 {
	attempts := s.FilesWritten + s.ErrorsCount
	if attempts == 0 {
		return 0
	}
	return float64(s.ErrorsCount) / float64(attempts)
}

func (s WriterStats) BytesPerFile() float64 {
	if s.FilesWritten == 0 {
		return 0
	}
	return float64(s.BytesWritten) / float64(s.FilesWritten)
}

func (s WriterStats) counters() []struct {
	name  string
	value int64
	unit  string
} {
	return []struct {
		name  string
		value int64
		unit  string
	}{
		{"records_written", s.RecordsWritten, "count"},
		{"files_written", s.FilesWritten, "count"},
		{"bytes_written", s.BytesWritten, "bytes"},
		{"errors_count", s.ErrorsCount, "count"},
	}
}

// ReportWriter emits one counter per statistic and logs a summary line,
// at warn level when any write failed.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	if log == nil {
		log = logger.GetLogger()
	}

	summary := logger.Fields{
		"error_rate":         stats.ErrorRate(),
		"avg_bytes_per_file": stats.BytesPerFile(),
	}
	for _, c := range stats.counters() {
		EmitMetric(log, component, c.name, c.value, "counter", logger.Fields{"unit": c.unit})
		summary[c.name] = c.value
	}

	entry := log.WithComponent(component).WithFields(summary)
	if stats.ErrorsCount > 0 {
		entry.Warn("writer finished with errors")
		return
	}
	entry.Info("writer finished")
}
