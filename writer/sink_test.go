package writer

import (
	"errors"
	"testing"

	"mboflow/models"
	"mboflow/processor"
)

type countingSink struct {
	n      int
	closed bool
}

func (c *countingSink) WriteRecord(models.MbpRecord) error { c.n++; return nil }
func (c *countingSink) Close() error { c.closed = true; return nil }

func TestTeeOpener(t *testing.T) {
	var made []*countingSink
	open := func(string, string) (processor.MbpSink, error) {
		s := &countingSink{}
		made = append(made, s)
		return s, nil
	}
	sink, err := TeeOpener(open, nil, open)("a.dbn", "OrderBook")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sink.WriteRecord(sampleRecord(1)); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(made) != 2 || made[0].n != 1 || made[1].n != 1 || !made[0].closed || !made[1].closed {
		t.Fatalf("records not fanned out: %+v %+v", made[0], made[1])
	}
}

func TestTeeOpenerFailureClosesOpened(t *testing.T) {
	first := &countingSink{}
	ok := func(string, string) (processor.MbpSink, error) { return first, nil }
	bad := func(string, string) (processor.MbpSink, error) { return nil, errors.New("disk full") }
	if _, err := TeeOpener(ok, bad)("a.dbn", "OrderBook"); err == nil {
		t.Fatal("expected open error")
	}
	if !first.closed {
		t.Fatal("expected opened sink to be closed")
	}
}

type sliceRuns struct{ runs []models.LatencyRun }

func (s *sliceRuns) WriteRun(r models.LatencyRun) error { s.runs = append(s.runs, r); return nil }

func TestTeeRuns(t *testing.T) {
	a, b := &sliceRuns{}, &sliceRuns{}
	tee := TeeRuns(a, nil, b)
	if err := tee.WriteRun(models.LatencyRun{Implementation: "OrderBook"}); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if len(a.runs) != 1 || len(b.runs) != 1 {
		t.Fatal("run not copied to every sink")
	}
}
