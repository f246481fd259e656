package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mboflow/internal/orderbook"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/reader"
)

// MbpSink receives the book state after every replayed message.
type MbpSink interface {
	WriteRecord(rec models.MbpRecord) error
	Close() error
}

// SinkOpener opens the sink for one source file and implementation.
type SinkOpener func(source, implementation string) (MbpSink, error)

// OutputPrefix is the artifact file prefix used for an implementation.
func OutputPrefix(implementation string) string {
	switch implementation {
	case orderbook.NameFlat:
		return "flatmap_"
	default:
		return "map_"
	}
}

// MbpGenerator replays streamed MBO events through one book
// implementation and emits a market-by-price record per event. The book
// is reset whenever the source file changes.
type MbpGenerator struct {
	implementation string
	maxDepth       int
	in             <-chan reader.MboEvent
	open           SinkOpener
	ctx            context.Context
	wg             *sync.WaitGroup
	mu             sync.RWMutex
	running        bool
	err            error
	log            *logger.Log

	// Metrics
	recordsWritten int64
	filesWritten   int64
}

// NewMbpGenerator creates a generator reading from in.
func NewMbpGenerator(implementation string, maxDepth int, in <-chan reader.MboEvent, open SinkOpener) (*MbpGenerator, error) {
	if _, err := orderbook.New(implementation); err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("sink opener is required")
	}
	return &MbpGenerator{
		implementation: implementation,
		maxDepth:       maxDepth,
		in:             in,
		open:           open,
		wg:             &sync.WaitGroup{},
		log:            logger.GetLogger(),
	}, nil
}

func (g *MbpGenerator) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("mbp generator already running")
	}
	g.running = true
	g.ctx = ctx
	g.mu.Unlock()

	g.log.WithComponent("mbp_generator").WithFields(logger.Fields{
		"operation":      "start",
		"implementation": g.implementation,
	}).Info("starting mbp generator")

	g.wg.Add(1)
	go g.worker()
	return nil
}

// Stop waits for the input channel to drain.
func (g *MbpGenerator) Stop() {
	g.wg.Wait()

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()

	g.log.WithComponent("mbp_generator").WithFields(logger.Fields{
		"implementation":  g.implementation,
		"records_written": g.recordsWritten,
		"files_written":   g.filesWritten,
	}).Info("mbp generator stopped")
}

// Err returns the first error hit by the worker. It is valid after Stop.
func (g *MbpGenerator) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// Records is the number of records handed to sinks.
func (g *MbpGenerator) Records() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.recordsWritten
}

func (g *MbpGenerator) setErr(err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = err
	}
	g.mu.Unlock()
}

type mbpFile struct {
	source  string
	book    orderbook.Book
	sink    MbpSink
	records int
	started time.Time
}

func (g *MbpGenerator) worker() {
	defer g.wg.Done()

	log := g.log.WithComponent("mbp_generator").WithFields(logger.Fields{
		"implementation": g.implementation,
	})

	var cur *mbpFile
	finish := func() {
		if cur == nil {
			return
		}
		if err := cur.sink.Close(); err != nil {
			g.setErr(fmt.Errorf("failed to close sink for %s: %w", cur.source, err))
		}
		logger.IncrementReplayed(cur.records)
		logger.LogPerformanceEntry(log, "mbp_generator", "replay_file", time.Since(cur.started), logger.Fields{
			"source":  cur.source,
			"records": cur.records,
		})
		g.mu.Lock()
		g.filesWritten++
		g.mu.Unlock()
		cur = nil
	}
	defer finish()

	for {
		select {
		case <-g.ctx.Done():
			g.setErr(g.ctx.Err())
			return
		case ev, ok := <-g.in:
			if !ok {
				return
			}
			if cur == nil || cur.source != ev.Source {
				finish()
				next, err := g.openFile(ev.Source)
				if err != nil {
					log.WithError(err).WithFields(logger.Fields{"source": ev.Source}).Error("failed to open mbp sink")
					g.setErr(err)
					g.drain()
					return
				}
				cur = next
			}

			cur.book.Apply(ev.Msg)
			rec := models.NewMbpRecord(ev.Msg, cur.book.Levels(g.maxDepth))
			if err := cur.sink.WriteRecord(rec); err != nil {
				g.setErr(fmt.Errorf("failed to write mbp record %d of %s: %w", ev.Index, ev.Source, err))
				g.drain()
				return
			}
			cur.records++
			g.mu.Lock()
			g.recordsWritten++
			g.mu.Unlock()
		}
	}
}

func (g *MbpGenerator) openFile(source string) (*mbpFile, error) {
	book, err := orderbook.New(g.implementation)
	if err != nil {
		return nil, err
	}
	sink, err := g.open(source, g.implementation)
	if err != nil {
		return nil, err
	}
	return &mbpFile{source: source, book: book, sink: sink, started: time.Now()}, nil
}

// drain consumes the rest of the input so the producer can finish.
func (g *MbpGenerator) drain() {
	for {
		select {
		case <-g.ctx.Done():
			return
		case _, ok := <-g.in:
			if !ok {
				return
			}
		}
	}
}
