package dbn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mboflow/models"
)

// Encoder writes a version 1 DBN stream of MBO records.
type Encoder struct {
	w       *bufio.Writer
	file    *os.File
	buf     [models.MboRecordSize]byte
	written int
}

// NewEncoder writes the metadata block to w and returns an encoder for the
// records that follow.
func NewEncoder(w io.Writer, meta models.Metadata) (*Encoder, error) {
	e := &Encoder{w: bufio.NewWriterSize(w, 64*1024)}
	if err := e.writeMetadata(meta); err != nil {
		return nil, err
	}
	return e, nil
}

// Create creates path, including parent directories, and returns an encoder
// writing to it. Close flushes and closes the file.
func Create(path string, meta models.Metadata) (*Encoder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dbn file %s: %w", path, err)
	}
	e, err := NewEncoder(f, meta)
	if err != nil {
		f.Close()
		return nil, err
	}
	e.file = f
	return e, nil
}

func (e *Encoder) writeMetadata(meta models.Metadata) error {
	le := binary.LittleEndian

	fixed := make([]byte, metadataFixedLenV1)
	copy(fixed[:datasetLen-1], meta.Dataset)
	le.PutUint16(fixed[16:18], meta.Schema)
	le.PutUint64(fixed[18:26], meta.Start)
	end := meta.End
	if end == 0 {
		end = UndefTimestamp
	}
	le.PutUint64(fixed[26:34], end)
	le.PutUint64(fixed[34:42], meta.Limit)
	// record_count is left at zero.
	fixed[50] = stypeRawSymbol
	fixed[51] = stypeInstrumentID

	var tail []byte
	tail = le.AppendUint32(tail, 0) // schema definition
	tail = le.AppendUint32(tail, uint32(len(meta.Symbols)))
	for _, s := range meta.Symbols {
		sym := make([]byte, symbolCstrLenV1)
		copy(sym[:symbolCstrLenV1-1], s)
		tail = append(tail, sym...)
	}
	tail = le.AppendUint32(tail, 0) // partial
	tail = le.AppendUint32(tail, 0) // not found
	tail = le.AppendUint32(tail, 0) // mappings

	length := len(fixed) + len(tail)
	if pad := (8 - (8+length)%8) % 8; pad > 0 {
		tail = append(tail, make([]byte, pad)...)
		length += pad
	}

	prelude := []byte{'D', 'B', 'N', 1, 0, 0, 0, 0}
	le.PutUint32(prelude[4:], uint32(length))

	for _, chunk := range [][]byte{prelude, fixed, tail} {
		if _, err := e.w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write dbn metadata: %w", err)
		}
	}
	return nil
}

// Encode writes msg. The header length and record type are always set to
// the MBO values regardless of msg.Header.
func (e *Encoder) Encode(msg models.MboMsg) error {
	le := binary.LittleEndian
	b := e.buf[:]
	b[0] = models.MboRecordSize / 4
	b[1] = models.RTypeMBO
	le.PutUint16(b[2:4], msg.Header.PublisherID)
	le.PutUint32(b[4:8], msg.Header.InstrumentID)
	le.PutUint64(b[8:16], msg.Header.TsEvent)
	le.PutUint64(b[16:24], msg.OrderID)
	le.PutUint64(b[24:32], uint64(msg.Price))
	le.PutUint32(b[32:36], msg.Size)
	b[36] = msg.Flags
	b[37] = msg.ChannelID
	b[38] = byte(msg.Action)
	b[39] = byte(msg.Side)
	le.PutUint64(b[40:48], msg.TsRecv)
	le.PutUint32(b[48:52], uint32(msg.TsInDelta))
	le.PutUint32(b[52:56], msg.Sequence)
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("failed to write mbo record: %w", err)
	}
	e.written++
	return nil
}

// Written reports the number of records encoded.
func (e *Encoder) Written() int { return e.written }

// Close flushes buffered records and closes the file opened by Create.
func (e *Encoder) Close() error {
	if err := e.w.Flush(); err != nil {
		if e.file != nil {
			e.file.Close()
		}
		return fmt.Errorf("failed to flush dbn stream: %w", err)
	}
	if e.file != nil {
		return e.file.Close()
	}
	return nil
}
