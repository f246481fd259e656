package writer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafka "github.com/segmentio/kafka-go"

	"mboflow/internal/orderbook"
	"mboflow/models"
)

type fakeKafka struct {
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

func TestKafkaWriterBatches(t *testing.T) {
	fk := &fakeKafka{}
	kw := newKafkaWriter(context.Background(), fk, "mboflow.mbp", 2)
	sink, err := kw.Opener()("a.dbn", orderbook.NameMap)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint32(1); i <= 5; i++ {
		if err := sink.WriteRecord(sampleRecord(i)); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if len(fk.msgs) != 2 {
		t.Fatalf("expected 2 full batches before close, got %d", len(fk.msgs))
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fk.msgs) != 3 {
		t.Fatalf("expected trailing batch on close, got %d", len(fk.msgs))
	}

	var batch models.MbpBatch
	if err := json.Unmarshal(fk.msgs[2].Value, &batch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(fk.msgs[2].Key) != "a.dbn" || batch.RecordCount != 1 || batch.Records[0].Sequence != 5 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if batch.Implementation != orderbook.NameMap || batch.BatchID == "" {
		t.Fatalf("unexpected batch identity %+v", batch)
	}

	if err := kw.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}
	if !fk.closed {
		t.Fatal("expected underlying writer to be closed")
	}
}

func TestKafkaWriterPublishError(t *testing.T) {
	fk := &fakeKafka{fail: true}
	kw := newKafkaWriter(context.Background(), fk, "t", 0)
	if kw.batchSize != defaultKafkaBatchSize {
		t.Fatalf("expected default batch size, got %d", kw.batchSize)
	}
	sink, _ := kw.Opener()("a.dbn", orderbook.NameFlat)
	if err := sink.WriteRecord(sampleRecord(1)); err != nil {
		t.Fatalf("buffered write should not fail: %v", err)
	}
	if err := sink.Close(); err == nil {
		t.Fatal("expected publish error on close")
	}
	if kw.errorsCount != 1 {
		t.Fatalf("expected 1 error, got %d", kw.errorsCount)
	}
}
