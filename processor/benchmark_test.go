package processor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mboflow/internal/dbn"
	"mboflow/internal/orderbook"
	"mboflow/models"
	"mboflow/reader"
)

func sampleMessages() []models.MboMsg {
	return []models.MboMsg{
		{OrderID: 1, Price: 10000, Size: 5, Action: models.ActionAdd, Side: models.SideBid},
		{OrderID: 2, Price: 10100, Size: 3, Action: models.ActionAdd, Side: models.SideAsk},
		{OrderID: 3, Price: 10010, Size: 2, Action: models.ActionAdd, Side: models.SideBid},
		{OrderID: 3, Action: models.ActionCancel, Side: models.SideBid},
		{OrderID: 4, Price: 10100, Size: 1, Action: models.ActionAdd, Side: models.SideBid},
	}
}

func writeSample(t *testing.T, path string) {
	t.Helper()
	enc, err := dbn.Create(path, models.Metadata{Dataset: "TEST", Schema: dbn.SchemaMBO, Symbols: []string{"TEST"}})
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	for _, msg := range sampleMessages() {
		if err := enc.Encode(msg); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type runSink struct {
	runs []models.LatencyRun
}

func (s *runSink) WriteRun(run models.LatencyRun) error {
	s.runs = append(s.runs, run)
	return nil
}

func fixedBenchmark(t *testing.T, d time.Duration) *Benchmark {
	t.Helper()
	b, err := NewBenchmark(nil)
	if err != nil {
		t.Fatalf("NewBenchmark: %v", err)
	}
	b.since = func(time.Time) time.Duration { return d }
	return b
}

func TestNewBenchmarkRejectsUnknownImplementation(t *testing.T) {
	if _, err := NewBenchmark([]string{"SkipListBook"}); err == nil {
		t.Fatal("expected error for unknown implementation")
	}
}

func TestBenchmarkRunFile(t *testing.T) {
	b := fixedBenchmark(t, 40*time.Nanosecond)
	file := &reader.MboFile{Path: "/data/FlashCrash.dbn", Messages: sampleMessages()}

	runs, err := b.RunFile(context.Background(), file)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if len(runs) != len(orderbook.Names) {
		t.Fatalf("expected %d runs, got %d", len(orderbook.Names), len(runs))
	}
	for i, run := range runs {
		if run.Implementation != orderbook.Names[i] {
			t.Fatalf("run %d: unexpected implementation %s", i, run.Implementation)
		}
		if run.Label() != "FlashCrash.dbn"+orderbook.Names[i] {
			t.Fatalf("unexpected label %s", run.Label())
		}
		if run.Messages != 5 || len(run.Durations) != 5 {
			t.Fatalf("expected 5 durations, got %d/%d", run.Messages, len(run.Durations))
		}
		if run.Total != 200 {
			t.Fatalf("expected total 200, got %d", run.Total)
		}
	}
}

func TestBenchmarkRunFileEmpty(t *testing.T) {
	b := fixedBenchmark(t, time.Nanosecond)
	if _, err := b.RunFile(context.Background(), &reader.MboFile{Path: "empty.dbn"}); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestBenchmarkRunFileCancelled(t *testing.T) {
	b := fixedBenchmark(t, time.Nanosecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	file := &reader.MboFile{Path: "a.dbn", Messages: sampleMessages()}
	if _, err := b.RunFile(ctx, file); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBenchmarkRunFiles(t *testing.T) {
	dir := t.TempDir()
	a, c := filepath.Join(dir, "BookChurn.dbn"), filepath.Join(dir, "PriceJump.dbn")
	writeSample(t, a)
	writeSample(t, c)

	b := fixedBenchmark(t, 10*time.Nanosecond)
	sink := &runSink{}
	n, err := b.RunFiles(context.Background(), []string{a, c}, sink)
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if n != 4 || len(sink.runs) != 4 {
		t.Fatalf("expected 4 runs, got %d (%d)", n, len(sink.runs))
	}
	if sink.runs[0].Label() != "BookChurn.dbnOrderBook" || sink.runs[3].Label() != "PriceJump.dbnFlatOrderBook" {
		t.Fatalf("unexpected run order: %s, %s", sink.runs[0].Label(), sink.runs[3].Label())
	}
}

func TestBenchmarkRunFilesMissing(t *testing.T) {
	b := fixedBenchmark(t, time.Nanosecond)
	if _, err := b.RunFiles(context.Background(), []string{filepath.Join(t.TempDir(), "missing.dbn")}, &runSink{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
