package dbn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mboflow/models"
)

func sampleMessages() []models.MboMsg {
	return []models.MboMsg{
		{
			Header:   models.RecordHeader{PublisherID: 1, InstrumentID: 42, TsEvent: 1000},
			OrderID:  1,
			Price:    100_000_000_000,
			Size:     10,
			Action:   models.ActionAdd,
			Side:     models.SideBid,
			TsRecv:   1001,
			Sequence: 7,
		},
		{
			Header:    models.RecordHeader{PublisherID: 1, InstrumentID: 42, TsEvent: 2000},
			OrderID:   2,
			Price:     -5,
			Size:      3,
			Flags:     128,
			ChannelID: 4,
			Action:    models.ActionTrade,
			Side:      models.SideAsk,
			TsRecv:    2001,
			TsInDelta: -12,
			Sequence:  8,
		},
	}
}

func encode(t *testing.T, msgs []models.MboMsg) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, models.Metadata{
		Dataset: "TEST_DATASET",
		Schema:  SchemaMBO,
		Start:   5,
		Limit:   uint64(len(msgs)),
		Symbols: []string{"TEST"},
	})
	require.NoError(t, err)
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}
	require.NoError(t, enc.Close())
	assert.Equal(t, len(msgs), enc.Written())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	msgs := sampleMessages()
	data := encode(t, msgs)

	dec, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	defer dec.Close()

	meta, err := dec.Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), meta.Version)
	assert.Equal(t, "TEST_DATASET", meta.Dataset)
	assert.Equal(t, SchemaMBO, meta.Schema)
	assert.Equal(t, uint64(5), meta.Start)
	assert.Equal(t, UndefTimestamp, meta.End)
	assert.Equal(t, []string{"TEST"}, meta.Symbols)

	got, err := dec.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, len(msgs))
	for i := range msgs {
		want := msgs[i]
		want.Header.Length = 14
		want.Header.RType = models.RTypeMBO
		assert.Equal(t, want, got[i])
	}
}

func TestMetadataIsAligned(t *testing.T) {
	data := encode(t, nil)
	length := binary.LittleEndian.Uint32(data[4:8])
	assert.Equal(t, 0, int(8+length)%8)
	assert.Equal(t, int(8+length), len(data))
}

func TestSkipsOtherRecordTypes(t *testing.T) {
	data := encode(t, sampleMessages()[:1])

	// A 16 byte record of another type between two MBO records.
	other := make([]byte, 16)
	other[0] = 4
	other[1] = 0x01
	data = append(data, other...)
	data = append(data, encode(t, sampleMessages()[1:])[len(encode(t, nil)):]...)

	dec, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	got, err := dec.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, dec.Skipped())
	assert.Equal(t, 2, dec.Decoded())
}

func TestZstdInput(t *testing.T) {
	raw := encode(t, sampleMessages())
	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dec, err := NewDecoder(bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBadMagic(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader([]byte("NOTADBNFILE")))
	require.NoError(t, err)
	_, err = dec.Next()
	assert.True(t, errors.Is(err, ErrBadMagic), "got %v", err)
}

func TestEmptyInput(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = dec.Metadata()
	assert.True(t, errors.Is(err, ErrBadMagic), "got %v", err)
}

func TestUnsupportedVersion(t *testing.T) {
	data := encode(t, nil)
	data[3] = 9
	dec, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = dec.Metadata()
	assert.True(t, errors.Is(err, ErrUnsupportedVersion), "got %v", err)
}

func TestTruncatedRecord(t *testing.T) {
	data := encode(t, sampleMessages())
	data = data[:len(data)-10]
	dec, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = dec.Next()
	require.NoError(t, err)
	_, err = dec.Next()
	assert.True(t, errors.Is(err, ErrTruncated), "got %v", err)
}

func TestCleanEOF(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader(encode(t, nil)))
	require.NoError(t, err)
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.dbn")
	enc, err := Create(path, models.Metadata{Dataset: "X", Schema: SchemaMBO})
	require.NoError(t, err)
	for _, m := range sampleMessages() {
		require.NoError(t, enc.Encode(m))
	}
	require.NoError(t, enc.Close())

	dec, err := Open(path)
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
