package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mboflow/internal/dbn"
	"mboflow/internal/metrics"
	"mboflow/logger"
	"mboflow/models"
)

// ErrNoDBNFiles is returned when a directory holds no DBN input.
var ErrNoDBNFiles = errors.New("no DBN files found")

// DefaultExtensions are the suffixes treated as DBN input.
var DefaultExtensions = []string{".dbn", ".dbn.zst"}

func hasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// DiscoverDBNFiles returns path itself when it names a file, or the sorted
// regular files with a DBN extension when it names a directory.
func DiscoverDBNFiles(path string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}
	if info.Mode().IsRegular() {
		return []string{path}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is neither a file nor a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !hasExtension(e.Name(), exts) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDBNFiles, path)
	}
	sort.Strings(files)
	return files, nil
}

// MboFile is the decoded content of one input file.
type MboFile struct {
	Path     string
	Metadata *models.Metadata
	Messages []models.MboMsg
	Skipped  int
}

// Name is the base file name.
func (f MboFile) Name() string { return filepath.Base(f.Path) }

// LoadMboMessages reads every MBO record of the file at path.
func LoadMboMessages(path string) (*MboFile, error) {
	log := logger.GetLogger().WithComponent("dbn_reader").WithFields(logger.Fields{"path": path})
	start := time.Now()

	dec, err := dbn.Open(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	meta, err := dec.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", path, err)
	}
	if meta.Schema != dbn.SchemaMBO {
		log.WithFields(logger.Fields{"schema": meta.Schema}).Warn("metadata schema is not MBO")
	}
	msgs, err := dec.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	logger.IncrementDecoded(len(msgs))
	metrics.EmitSkipMetric(logger.GetLogger(), "dbn_reader", metrics.SkipMetricNonMBO, dec.Skipped(), filepath.Base(path), "decode")
	logger.LogPerformanceEntry(log, "dbn_reader", "load_file", time.Since(start), logger.Fields{
		"records": len(msgs),
		"skipped": dec.Skipped(),
	})

	return &MboFile{Path: path, Metadata: meta, Messages: msgs, Skipped: dec.Skipped()}, nil
}

// MboEvent is one record streamed by MboReader.
type MboEvent struct {
	Source string
	Index  int
	Msg    models.MboMsg
}

// MboReader streams the records of a list of files, in file order, onto a
// channel it closes when every file is read or the context ends.
type MboReader struct {
	files   []string
	out     chan<- MboEvent
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	err     error
	log     *logger.Log
}

// NewMboReader creates a reader over files that sends to out.
func NewMboReader(files []string, out chan<- MboEvent) *MboReader {
	return &MboReader{
		files: files,
		out:   out,
		wg:    &sync.WaitGroup{},
		log:   logger.GetLogger(),
	}
}

// Start launches the streaming worker.
func (r *MboReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	r.log.WithComponent("dbn_reader").WithFields(logger.Fields{
		"operation": "start",
		"files":     len(r.files),
	}).Info("starting dbn reader")

	r.wg.Add(1)
	go r.streamWorker()
	return nil
}

// Stop waits for the worker to finish.
func (r *MboReader) Stop() {
	r.log.WithComponent("dbn_reader").Info("stopping dbn reader")
	r.wg.Wait()

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("dbn_reader").Info("dbn reader stopped")
}

// Err returns the first error the worker hit. It is valid after Stop.
func (r *MboReader) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *MboReader) setErr(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *MboReader) streamWorker() {
	defer r.wg.Done()
	defer close(r.out)

	for _, path := range r.files {
		if err := r.streamFile(path); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				r.log.WithComponent("dbn_reader").WithError(err).WithFields(logger.Fields{"path": path}).Error("failed to stream file")
			}
			r.setErr(err)
			return
		}
	}
}

func (r *MboReader) streamFile(path string) error {
	log := r.log.WithComponent("dbn_reader").WithFields(logger.Fields{"path": path})

	dec, err := dbn.Open(path)
	if err != nil {
		return err
	}
	defer dec.Close()

	source := filepath.Base(path)
	for i := 0; ; i++ {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		select {
		case r.out <- MboEvent{Source: source, Index: i, Msg: msg}:
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}

	logger.IncrementDecoded(dec.Decoded())
	metrics.EmitSkipMetric(r.log, "dbn_reader", metrics.SkipMetricNonMBO, dec.Skipped(), source, "stream")
	logger.LogDataFlowEntry(log, source, "mbo_channel", dec.Decoded(), "mbo_records")
	return nil
}
