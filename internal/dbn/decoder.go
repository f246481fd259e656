package dbn

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"mboflow/models"
)

// Decoder reads a DBN stream. Metadata is decoded lazily by the first call to
// Metadata or Next.
type Decoder struct {
	r        *bufio.Reader
	closers  []func()
	meta     *models.Metadata
	buf      []byte
	metaErr  error
	skipped  int
	decoded  int
	metaRead bool
}

// NewDecoder wraps r. Zstandard compressed input is detected and
// decompressed transparently.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	d := &Decoder{buf: make([]byte, 255*4)}

	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dbn: failed to read prelude: %w", err)
	}
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("dbn: failed to open zstd stream: %w", err)
		}
		d.closers = append(d.closers, zr.Close)
		br = bufio.NewReaderSize(zr, 64*1024)
	}
	d.r = br
	return d, nil
}

// Open opens the DBN file at path. The caller must Close the decoder.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dbn file %s: %w", path, err)
	}
	d, err := NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closers = append(d.closers, func() { f.Close() })
	return d, nil
}

// Close releases the underlying resources.
func (d *Decoder) Close() error {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
	return nil
}

// Skipped reports how many non-MBO records were passed over.
func (d *Decoder) Skipped() int { return d.skipped }

// Decoded reports how many MBO records were returned.
func (d *Decoder) Decoded() int { return d.decoded }

// Metadata decodes and returns the stream metadata.
func (d *Decoder) Metadata() (*models.Metadata, error) {
	if !d.metaRead {
		d.meta, d.metaErr = d.readMetadata()
		d.metaRead = true
	}
	return d.meta, d.metaErr
}

func (d *Decoder) readMetadata() (*models.Metadata, error) {
	prelude := make([]byte, 8)
	if _, err := io.ReadFull(d.r, prelude); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(prelude[:3]) != magic {
		return nil, ErrBadMagic
	}
	version := prelude[3]
	if version < minVersion || version > maxVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	length := binary.LittleEndian.Uint32(prelude[4:8])
	if length < metadataCommonLen {
		return nil, fmt.Errorf("%w: metadata length %d", ErrTruncated, length)
	}

	block := make([]byte, length)
	if _, err := io.ReadFull(d.r, block); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrTruncated, err)
	}

	meta := &models.Metadata{
		Version: version,
		Dataset: cstring(block[:datasetLen]),
		Schema:  binary.LittleEndian.Uint16(block[16:18]),
		Start:   binary.LittleEndian.Uint64(block[18:26]),
		End:     binary.LittleEndian.Uint64(block[26:34]),
		Limit:   binary.LittleEndian.Uint64(block[34:42]),
	}
	if version == 1 {
		meta.Symbols = decodeSymbolsV1(block)
	}
	return meta, nil
}

// Next returns the next MBO record. Records of other types are skipped.
// It returns io.EOF once the stream is exhausted.
func (d *Decoder) Next() (models.MboMsg, error) {
	if _, err := d.Metadata(); err != nil {
		return models.MboMsg{}, err
	}
	for {
		if _, err := io.ReadFull(d.r, d.buf[:1]); err != nil {
			if errors.Is(err, io.EOF) {
				return models.MboMsg{}, io.EOF
			}
			return models.MboMsg{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		size := int(d.buf[0]) * 4
		if size < headerLen {
			return models.MboMsg{}, fmt.Errorf("%w: record length %d", ErrTruncated, size)
		}
		if _, err := io.ReadFull(d.r, d.buf[1:size]); err != nil {
			return models.MboMsg{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		rec := d.buf[:size]
		if rec[1] != models.RTypeMBO || size < models.MboRecordSize {
			d.skipped++
			continue
		}
		d.decoded++
		return decodeMbo(rec), nil
	}
}

// ReadAll decodes every remaining MBO record.
func (d *Decoder) ReadAll() ([]models.MboMsg, error) {
	var msgs []models.MboMsg
	for {
		msg, err := d.Next()
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}

func decodeMbo(b []byte) models.MboMsg {
	le := binary.LittleEndian
	return models.MboMsg{
		Header: models.RecordHeader{
			Length:       b[0],
			RType:        b[1],
			PublisherID:  le.Uint16(b[2:4]),
			InstrumentID: le.Uint32(b[4:8]),
			TsEvent:      le.Uint64(b[8:16]),
		},
		OrderID:   le.Uint64(b[16:24]),
		Price:     int64(le.Uint64(b[24:32])),
		Size:      le.Uint32(b[32:36]),
		Flags:     b[36],
		ChannelID: b[37],
		Action:    models.Action(b[38]),
		Side:      models.Side(b[39]),
		TsRecv:    le.Uint64(b[40:48]),
		TsInDelta: int32(le.Uint32(b[48:52])),
		Sequence:  le.Uint32(b[52:56]),
	}
}

// decodeSymbolsV1 reads the requested symbols that follow the fixed block
// and the schema definition. Malformed input yields nil.
func decodeSymbolsV1(block []byte) []string {
	off := metadataFixedLenV1
	if len(block) < off+4 {
		return nil
	}
	schemaLen := int(binary.LittleEndian.Uint32(block[off:]))
	off += 4 + schemaLen
	if len(block) < off+4 {
		return nil
	}
	count := int(binary.LittleEndian.Uint32(block[off:]))
	off += 4
	if count < 0 || len(block) < off+count*symbolCstrLenV1 {
		return nil
	}
	symbols := make([]string, 0, count)
	for i := 0; i < count; i++ {
		symbols = append(symbols, cstring(block[off:off+symbolCstrLenV1]))
		off += symbolCstrLenV1
	}
	return symbols
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
