package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	appconfig "mboflow/config"
	"mboflow/internal/metrics"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/processor"
)

const defaultKafkaBatchSize = 1000

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes market-by-price records to a topic as JSON
// batches keyed by source file.
type KafkaWriter struct {
	writer    messageWriter
	topic     string
	batchSize int
	ctx       context.Context
	mu        sync.Mutex
	log       *logger.Log

	// Metrics
	batchesWritten int64
	recordsWritten int64
	bytesWritten   int64
	errorsCount    int64
}

// NewKafkaWriter connects a writer to the configured brokers.
func NewKafkaWriter(ctx context.Context, cfg *appconfig.Config) (*KafkaWriter, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
		Topic:    cfg.Storage.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	kw := newKafkaWriter(ctx, w, cfg.Storage.Kafka.Topic, cfg.Storage.Kafka.BatchSize)
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

func newKafkaWriter(ctx context.Context, w messageWriter, topic string, batchSize int) *KafkaWriter {
	if batchSize <= 0 {
		batchSize = defaultKafkaBatchSize
	}
	return &KafkaWriter{
		writer:    w,
		topic:     topic,
		batchSize: batchSize,
		ctx:       ctx,
		log:       logger.GetLogger(),
	}
}

// Opener returns a sink factory that publishes through this writer.
func (kw *KafkaWriter) Opener() processor.SinkOpener {
	return func(source, implementation string) (processor.MbpSink, error) {
		return &kafkaSink{kw: kw, source: source, implementation: implementation}, nil
	}
}

func (kw *KafkaWriter) publish(batch models.MbpBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		kw.mu.Lock()
		kw.errorsCount++
		kw.mu.Unlock()
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(batch.Source),
		Value: data,
		Headers: []kafka.Header{
			{Key: "implementation", Value: []byte(batch.Implementation)},
		},
	}
	if err := kw.writer.WriteMessages(kw.ctx, msg); err != nil {
		kw.mu.Lock()
		kw.errorsCount++
		kw.mu.Unlock()
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to write message")
		return fmt.Errorf("failed to publish batch %s: %w", batch.BatchID, err)
	}

	kw.mu.Lock()
	kw.batchesWritten++
	kw.recordsWritten += int64(batch.RecordCount)
	kw.bytesWritten += int64(len(data))
	kw.mu.Unlock()

	logger.IncrementPublished(batch.RecordCount, len(data))
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"batch_id": batch.BatchID,
		"records":  batch.RecordCount,
	}).Debug("batch written to kafka")
	return nil
}

// Close reports totals and closes the underlying connection.
func (kw *KafkaWriter) Close() error {
	kw.mu.Lock()
	stats := metrics.WriterStats{
		RecordsWritten: kw.recordsWritten,
		FilesWritten:   kw.batchesWritten,
		BytesWritten:   kw.bytesWritten,
		ErrorsCount:    kw.errorsCount,
	}
	kw.mu.Unlock()
	metrics.ReportWriter(kw.log, "kafka_writer", stats)

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	return kw.writer.Close()
}

// kafkaSink buffers the records of one source into batches.
type kafkaSink struct {
	kw             *KafkaWriter
	source         string
	implementation string
	pending        []models.MbpRecord
}

func (s *kafkaSink) WriteRecord(rec models.MbpRecord) error {
	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.kw.batchSize {
		return s.flush()
	}
	return nil
}

func (s *kafkaSink) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := models.MbpBatch{
		BatchID:        uuid.New().String(),
		Source:         s.source,
		Implementation: s.implementation,
		Records:        s.pending,
		RecordCount:    len(s.pending),
		Timestamp:      time.Now(),
	}
	s.pending = nil
	return s.kw.publish(batch)
}

// Close publishes whatever is still buffered.
func (s *kafkaSink) Close() error { return s.flush() }
