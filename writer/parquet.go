package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"mboflow/internal/metrics"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/processor"
)

const parquetParallelism = 4

// MbpParquetRecord is the top of book after one MBO message.
type MbpParquetRecord struct {
	Source         string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Implementation string `parquet:"name=implementation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence       int64  `parquet:"name=sequence, type=INT64"`
	TsEvent        int64  `parquet:"name=ts_event, type=INT64"`
	TsRecv         int64  `parquet:"name=ts_recv, type=INT64"`
	InstrumentID   int64  `parquet:"name=instrument_id, type=INT64"`
	Action         string `parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side           string `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price          int64  `parquet:"name=price, type=INT64"`
	Size           int64  `parquet:"name=size, type=INT64"`
	BidPrice       int64  `parquet:"name=bid_px, type=INT64"`
	BidSize        int64  `parquet:"name=bid_sz, type=INT64"`
	BidCount       int32  `parquet:"name=bid_ct, type=INT32"`
	AskPrice       int64  `parquet:"name=ask_px, type=INT64"`
	AskSize        int64  `parquet:"name=ask_sz, type=INT64"`
	AskCount       int32  `parquet:"name=ask_ct, type=INT32"`
	Depth          int32  `parquet:"name=depth, type=INT32"`
}

// LatencyParquetRecord is a single latency measurement.
type LatencyParquetRecord struct {
	Label      string `parquet:"name=label, type=BYTE_ARRAY, convertedtype=UTF8"`
	Index      int64  `parquet:"name=index, type=INT64"`
	DurationNs int64  `parquet:"name=duration_ns, type=INT64"`
}

// compressionCodec maps a configured name onto a parquet codec.
func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "lzo":
		return parquet.CompressionCodec_LZO
	case "zstd":
		return parquet.CompressionCodec_ZSTD
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// parquetFile owns one local parquet file and its row writer.
type parquetFile struct {
	path        string
	component   string
	compression string
	fw          source.ParquetFile
	pw          *writer.ParquetWriter
	rows        int64
	errorsCount int64
	log         *logger.Log
}

func newParquetFile(path, component string, schema interface{}, compression string, pageSize int) (*parquetFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parquet directory: %w", err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, schema, parquetParallelism)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)
	if pageSize > 0 {
		pw.PageSize = int64(pageSize)
	}

	log := logger.GetLogger()
	log.WithComponent(component).WithFields(logger.Fields{
		"path":        path,
		"compression": compression,
	}).Debug("parquet writer initialized")

	return &parquetFile{
		path:        path,
		component:   component,
		compression: compression,
		fw:          fw,
		pw:          pw,
		log:         log,
	}, nil
}

func (p *parquetFile) write(record interface{}) error {
	if err := p.pw.Write(record); err != nil {
		p.errorsCount++
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	p.rows++
	return nil
}

func (p *parquetFile) close() error {
	err := p.pw.WriteStop()
	if cerr := p.fw.Close(); err == nil {
		err = cerr
	}

	stats := metrics.WriterStats{RecordsWritten: p.rows, ErrorsCount: p.errorsCount}
	if err != nil {
		stats.ErrorsCount++
	} else if info, serr := os.Stat(p.path); serr == nil {
		stats.FilesWritten = 1
		stats.BytesWritten = info.Size()
		logger.IncrementArtifact(info.Size())
		p.log.WithComponent(p.component).WithFields(logger.Fields{
			"path":        p.path,
			"rows":        p.rows,
			"file_size":   info.Size(),
			"compression": p.compression,
		}).Info("parquet file created successfully")
	}
	metrics.ReportWriter(p.log, p.component, stats)

	if err != nil {
		return fmt.Errorf("failed to finalize parquet file %s: %w", p.path, err)
	}
	return nil
}

// MbpParquetWriter stores the top of book of each market-by-price record.
type MbpParquetWriter struct {
	file           *parquetFile
	source         string
	implementation string
}

// NewMbpParquetWriter creates a parquet sink for one source file.
func NewMbpParquetWriter(path, source, implementation, compression string, pageSize int) (*MbpParquetWriter, error) {
	f, err := newParquetFile(path, "mbp_parquet_writer", new(MbpParquetRecord), compression, pageSize)
	if err != nil {
		return nil, err
	}
	return &MbpParquetWriter{file: f, source: source, implementation: implementation}, nil
}

// MbpParquetOpener opens a parquet writer per source under dir.
func MbpParquetOpener(dir, compression string, pageSize int) processor.SinkOpener {
	return func(source, implementation string) (processor.MbpSink, error) {
		name := processor.OutputPrefix(implementation) + filepath.Base(source) + ".parquet"
		return NewMbpParquetWriter(filepath.Join(dir, name), source, implementation, compression, pageSize)
	}
}

// Path is the output file.
func (w *MbpParquetWriter) Path() string { return w.file.path }

func (w *MbpParquetWriter) WriteRecord(rec models.MbpRecord) error {
	row := MbpParquetRecord{
		Source:         w.source,
		Implementation: w.implementation,
		Sequence:       int64(rec.Sequence),
		TsEvent:        int64(rec.Header.TsEvent),
		TsRecv:         int64(rec.TsRecv),
		InstrumentID:   int64(rec.Header.InstrumentID),
		Action:         rec.Action.String(),
		Side:           rec.Side.String(),
		Price:          rec.Price,
		Size:           int64(rec.Size),
		Depth:          int32(len(rec.Levels)),
	}
	if len(rec.Levels) > 0 {
		top := rec.Levels[0]
		row.BidPrice = top.BidPrice
		row.BidSize = int64(top.BidSize)
		row.BidCount = int32(top.BidCount)
		row.AskPrice = top.AskPrice
		row.AskSize = int64(top.AskSize)
		row.AskCount = int32(top.AskCount)
	}
	return w.file.write(row)
}

func (w *MbpParquetWriter) Close() error { return w.file.close() }

// LatencyParquetWriter flattens latency runs into one row per measurement.
type LatencyParquetWriter struct {
	file *parquetFile
}

// NewLatencyParquetWriter creates the latency sample file at path.
func NewLatencyParquetWriter(path, compression string, pageSize int) (*LatencyParquetWriter, error) {
	f, err := newParquetFile(path, "latency_parquet_writer", new(LatencyParquetRecord), compression, pageSize)
	if err != nil {
		return nil, err
	}
	return &LatencyParquetWriter{file: f}, nil
}

// Path is the output file.
func (w *LatencyParquetWriter) Path() string { return w.file.path }

// WriteRun writes every duration of run.
func (w *LatencyParquetWriter) WriteRun(run models.LatencyRun) error {
	label := run.Label()
	for i, d := range run.Durations {
		sample := models.LatencySample{Label: label, Index: i, DurationNs: d}
		if err := w.file.write(LatencyParquetRecord{
			Label:      sample.Label,
			Index:      int64(sample.Index),
			DurationNs: sample.DurationNs,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *LatencyParquetWriter) Close() error { return w.file.close() }
