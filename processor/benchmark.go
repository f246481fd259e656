package processor

import (
	"context"
	"fmt"
	"time"

	"mboflow/internal/metrics"
	"mboflow/internal/orderbook"
	"mboflow/internal/stats"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/reader"
)

// RunSink receives finished latency runs.
type RunSink interface {
	WriteRun(run models.LatencyRun) error
}

// Benchmark replays input files through every configured book
// implementation and measures the latency of each message.
type Benchmark struct {
	implementations []string
	log             *logger.Log
	// since measures elapsed time on the monotonic clock.
	since func(time.Time) time.Duration
}

// NewBenchmark validates the implementation names.
func NewBenchmark(implementations []string) (*Benchmark, error) {
	if len(implementations) == 0 {
		implementations = orderbook.Names
	}
	for _, name := range implementations {
		if _, err := orderbook.New(name); err != nil {
			return nil, err
		}
	}
	return &Benchmark{
		implementations: implementations,
		log:             logger.GetLogger(),
		since:           time.Since,
	}, nil
}

// RunFile measures every implementation over one decoded file. Each run
// starts from an empty book.
func (b *Benchmark) RunFile(ctx context.Context, file *reader.MboFile) ([]models.LatencyRun, error) {
	if len(file.Messages) == 0 {
		return nil, fmt.Errorf("no MBO messages loaded from %s", file.Path)
	}

	runs := make([]models.LatencyRun, 0, len(b.implementations))
	for _, name := range b.implementations {
		book, err := orderbook.New(name)
		if err != nil {
			return nil, err
		}
		run, err := b.replay(ctx, book, file)
		if err != nil {
			return nil, err
		}
		b.report(run)
		runs = append(runs, run)
	}
	return runs, nil
}

func (b *Benchmark) replay(ctx context.Context, book orderbook.Book, file *reader.MboFile) (models.LatencyRun, error) {
	run := models.LatencyRun{
		Source:         file.Name(),
		Implementation: book.Name(),
		Messages:       len(file.Messages),
		Durations:      make([]int64, len(file.Messages)),
	}

	for i, msg := range file.Messages {
		if i&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return run, err
			}
		}
		start := time.Now()
		book.Apply(msg)
		d := b.since(start).Nanoseconds()
		run.Durations[i] = d
		run.Total += d
	}
	logger.IncrementReplayed(len(file.Messages))
	return run, nil
}

func (b *Benchmark) report(run models.LatencyRun) {
	summary, err := stats.Summarize(run.Durations)
	if err != nil {
		return
	}
	metrics.ReportLatency(b.log, metrics.LatencySummary{
		Source:         run.Source,
		Implementation: run.Implementation,
		Messages:       run.Messages,
		TotalNs:        run.Total,
		MeanNs:         summary.Mean,
		P50Ns:          summary.P50,
		P99Ns:          summary.P99,
		MaxNs:          summary.Max,
	})
}

// RunFiles loads and benchmarks each file in turn, handing every run to
// sink. Runs are not retained so memory stays bounded by one file.
func (b *Benchmark) RunFiles(ctx context.Context, files []string, sink RunSink) (int, error) {
	log := b.log.WithComponent("benchmark")
	written := 0
	for _, path := range files {
		file, err := reader.LoadMboMessages(path)
		if err != nil {
			return written, err
		}
		log.WithFields(logger.Fields{
			"path":     path,
			"messages": len(file.Messages),
		}).Info("benchmarking file")

		runs, err := b.RunFile(ctx, file)
		if err != nil {
			return written, err
		}
		for _, run := range runs {
			if err := sink.WriteRun(run); err != nil {
				return written, fmt.Errorf("failed to write run %s: %w", run.Label(), err)
			}
			written++
		}
	}
	return written, nil
}
