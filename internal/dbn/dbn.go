// Package dbn reads and writes market-by-order records in the DBN container
// format: a "DBN" prelude with a length-prefixed metadata block followed by
// self-describing little endian records.
package dbn

import "errors"

var (
	ErrBadMagic           = errors.New("dbn: missing DBN prelude")
	ErrUnsupportedVersion = errors.New("dbn: unsupported version")
	ErrTruncated          = errors.New("dbn: truncated record")
)

const (
	magic = "DBN"

	// Versions this package can decode. Encoding always writes version 1.
	minVersion = 1
	maxVersion = 3

	// SchemaMBO is the schema identifier for market-by-order data.
	SchemaMBO uint16 = 0

	// v1 metadata: dataset[16] schema[2] start[8] end[8] limit[8]
	// record_count[8] stype_in[1] stype_out[1] ts_out[1] reserved[47]
	metadataFixedLenV1 = 100
	datasetLen         = 16
	symbolCstrLenV1    = 22

	// Prefix of the fixed metadata shared by every version.
	metadataCommonLen = datasetLen + 2 + 8 + 8 + 8

	stypeInstrumentID uint8 = 0
	stypeRawSymbol    uint8 = 1

	headerLen = 16

	// UndefTimestamp marks an unset timestamp.
	UndefTimestamp = ^uint64(0)
)

// zstd frame magic, little endian 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
