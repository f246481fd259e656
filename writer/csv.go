package writer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"mboflow/internal/metrics"
	"mboflow/logger"
	"mboflow/models"
)

// DefaultCSVPath is where benchmark results land when no path is configured.
const DefaultCSVPath = "artifacts/benchmark_results.csv"

// CSVWriter writes one header-less row per latency run:
// label, message count, every duration and the total.
type CSVWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	mu   sync.Mutex
	log  *logger.Log

	// Metrics
	rowsWritten int64
	errorsCount int64
}

// NewCSVWriter truncates or creates path, along with its parent directory.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if path == "" {
		path = DefaultCSVPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 1<<20)
	w := &CSVWriter{
		path: path,
		file: f,
		buf:  buf,
		csv:  csv.NewWriter(buf),
		log:  logger.GetLogger(),
	}
	w.log.WithComponent("csv_writer").WithFields(logger.Fields{"path": path}).Debug("csv writer initialized")
	return w, nil
}

// Path is the output file.
func (w *CSVWriter) Path() string { return w.path }

// WriteRun appends run as a single row.
func (w *CSVWriter) WriteRun(run models.LatencyRun) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := make([]string, 0, len(run.Durations)+3)
	row = append(row, run.Label(), strconv.Itoa(run.Messages))
	for _, d := range run.Durations {
		row = append(row, strconv.FormatInt(d, 10))
	}
	row = append(row, strconv.FormatInt(run.Total, 10))

	if err := w.csv.Write(row); err != nil {
		w.errorsCount++
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	w.rowsWritten++
	return nil
}

// Close flushes and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	err := w.csv.Error()
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}

	stats := metrics.WriterStats{RecordsWritten: w.rowsWritten, ErrorsCount: w.errorsCount}
	if err != nil {
		stats.ErrorsCount++
	} else if info, serr := os.Stat(w.path); serr == nil {
		stats.FilesWritten = 1
		stats.BytesWritten = info.Size()
		logger.IncrementArtifact(info.Size())
	}
	metrics.ReportWriter(w.log, "csv_writer", stats)

	if err != nil {
		return fmt.Errorf("failed to close csv file: %w", err)
	}
	return nil
}
