package processor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mboflow/internal/orderbook"
	"mboflow/models"
	"mboflow/reader"
)

type memorySink struct {
	records []models.MbpRecord
	closed  bool
	fail    bool
}

func (s *memorySink) WriteRecord(rec models.MbpRecord) error {
	if s.fail {
		return errors.New("sink full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

type sinkSet struct {
	mu    sync.Mutex
	sinks map[string]*memorySink
	fail  bool
}

func (s *sinkSet) open(source, implementation string) (MbpSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sinks == nil {
		s.sinks = map[string]*memorySink{}
	}
	sink := &memorySink{fail: s.fail}
	s.sinks[OutputPrefix(implementation)+source] = sink
	return sink, nil
}

func feed(sources ...string) <-chan reader.MboEvent {
	ch := make(chan reader.MboEvent, len(sources)*len(sampleMessages()))
	for _, src := range sources {
		for i, msg := range sampleMessages() {
			ch <- reader.MboEvent{Source: src, Index: i, Msg: msg}
		}
	}
	close(ch)
	return ch
}

func TestOutputPrefix(t *testing.T) {
	if OutputPrefix(orderbook.NameMap) != "map_" {
		t.Fatalf("unexpected prefix %s", OutputPrefix(orderbook.NameMap))
	}
	if OutputPrefix(orderbook.NameFlat) != "flatmap_" {
		t.Fatalf("unexpected prefix %s", OutputPrefix(orderbook.NameFlat))
	}
}

func TestNewMbpGeneratorValidation(t *testing.T) {
	set := &sinkSet{}
	if _, err := NewMbpGenerator("Unknown", 0, nil, set.open); err == nil {
		t.Fatal("expected error for unknown implementation")
	}
	if _, err := NewMbpGenerator(orderbook.NameMap, 0, nil, nil); err == nil {
		t.Fatal("expected error for missing opener")
	}
}

func TestMbpGeneratorRecordsPerMessage(t *testing.T) {
	for _, name := range orderbook.Names {
		t.Run(name, func(t *testing.T) {
			set := &sinkSet{}
			g, err := NewMbpGenerator(name, 0, feed("a.dbn", "b.dbn"), set.open)
			if err != nil {
				t.Fatalf("NewMbpGenerator: %v", err)
			}
			if err := g.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if err := g.Start(context.Background()); err == nil {
				t.Fatal("expected error on double start")
			}
			g.Stop()

			if err := g.Err(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.Records() != 10 {
				t.Fatalf("expected 10 records, got %d", g.Records())
			}
			if len(set.sinks) != 2 {
				t.Fatalf("expected one sink per source, got %d", len(set.sinks))
			}

			sink := set.sinks[OutputPrefix(name)+"b.dbn"]
			if sink == nil || !sink.closed || len(sink.records) != 5 {
				t.Fatalf("unexpected sink state: %+v", sink)
			}

			first := sink.records[0]
			if first.Action != models.ActionAdd || len(first.Levels) != 1 || first.Levels[0].BidPrice != 10000 {
				t.Fatalf("book was not reset between sources: %+v", first)
			}

			second := sink.records[1].Levels[0]
			want := models.Level{AskCount: 1, AskPrice: 10100, AskSize: 3, BidCount: 1, BidPrice: 10000, BidSize: 5}
			if second != want {
				t.Fatalf("unexpected level %+v", second)
			}

			// bid 10100x1 trades against the ask and leaves it at 2
			last := sink.records[4].Levels[0]
			if last.AskSize != 2 || last.BidPrice != 10000 {
				t.Fatalf("unexpected level after cross %+v", last)
			}
		})
	}
}

func TestMbpGeneratorMaxDepth(t *testing.T) {
	set := &sinkSet{}
	events := make(chan reader.MboEvent, 3)
	for i := 0; i < 3; i++ {
		events <- reader.MboEvent{Source: "d.dbn", Index: i, Msg: models.MboMsg{
			OrderID: models.OrderID(i + 1),
			Price:   models.Price(10000 - i*10),
			Size:    1,
			Action:  models.ActionAdd,
			Side:    models.SideBid,
		}}
	}
	close(events)

	g, err := NewMbpGenerator(orderbook.NameFlat, 2, events, set.open)
	if err != nil {
		t.Fatalf("NewMbpGenerator: %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	g.Stop()

	recs := set.sinks["flatmap_d.dbn"].records
	if len(recs[2].Levels) != 2 {
		t.Fatalf("expected depth 2, got %d", len(recs[2].Levels))
	}
}

func TestMbpGeneratorSinkError(t *testing.T) {
	set := &sinkSet{fail: true}
	g, err := NewMbpGenerator(orderbook.NameMap, 0, feed("a.dbn"), set.open)
	if err != nil {
		t.Fatalf("NewMbpGenerator: %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	g.Stop()
	if g.Err() == nil {
		t.Fatal("expected sink error")
	}
	if !set.sinks["map_a.dbn"].closed {
		t.Fatal("sink should be closed after failure")
	}
}
