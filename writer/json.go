package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mboflow/internal/metrics"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/processor"
)

// MbpJSONWriter streams market-by-price records into a single JSON array,
// one indented object per record.
type MbpJSONWriter struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	count int
	log   *logger.Log
}

// NewMbpJSONWriter creates path and writes the opening bracket.
func NewMbpJSONWriter(path string) (*MbpJSONWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mbp directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create mbp json file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 1<<20)
	if _, err := buf.WriteString("[\n"); err != nil {
		f.Close()
		return nil, err
	}

	log := logger.GetLogger()
	log.WithComponent("mbp_json_writer").WithFields(logger.Fields{"path": path}).Info("generating mbp json")
	return &MbpJSONWriter{path: path, file: f, buf: buf, log: log}, nil
}

// MbpJSONPath is the output file for source replayed by implementation.
func MbpJSONPath(dir, source, implementation string) string {
	return filepath.Join(dir, processor.OutputPrefix(implementation)+filepath.Base(source)+".json")
}

// MbpJSONOpener opens a JSON writer per source under dir.
func MbpJSONOpener(dir string) processor.SinkOpener {
	return func(source, implementation string) (processor.MbpSink, error) {
		return NewMbpJSONWriter(MbpJSONPath(dir, source, implementation))
	}
}

// Path is the output file.
func (w *MbpJSONWriter) Path() string { return w.path }

// Count is the number of records written so far.
func (w *MbpJSONWriter) Count() int { return w.count }

func (w *MbpJSONWriter) WriteRecord(rec models.MbpRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mbp record: %w", err)
	}
	if w.count > 0 {
		if _, err := w.buf.WriteString(",\n"); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	w.count++
	return nil
}

// Close terminates the array and closes the file.
func (w *MbpJSONWriter) Close() error {
	_, err := w.buf.WriteString("\n]\n")
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}

	stats := metrics.WriterStats{RecordsWritten: int64(w.count)}
	if err != nil {
		stats.ErrorsCount = 1
	} else if info, serr := os.Stat(w.path); serr == nil {
		stats.FilesWritten = 1
		stats.BytesWritten = info.Size()
		logger.IncrementArtifact(info.Size())
	}
	metrics.ReportWriter(w.log, "mbp_json_writer", stats)

	if err != nil {
		return fmt.Errorf("failed to close mbp json file: %w", err)
	}
	return nil
}
