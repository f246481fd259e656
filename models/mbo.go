package models

import "time"

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// SCALARS //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Price is a fixed point price with nine implied decimal places.
type Price = int64

// Quantity is the resting or traded size of an order.
type Quantity = uint32

// OrderID identifies a single order across its lifetime.
type OrderID = uint64

// PriceScale converts a raw Price into units.
const PriceScale = 1e-9

// RTypeMBO is the record type of market-by-order messages.
const RTypeMBO uint8 = 0xA0

// MboRecordSize is the encoded size of an MBO record in bytes.
const MboRecordSize = 56

// Side of the book an order rests on or aggresses from.
type Side byte

const (
	SideBid  Side = 'B'
	SideAsk  Side = 'A'
	SideNone Side = 'N'
)

func (s Side) String() string {
	if s == 0 {
		return ""
	}
	return string(rune(s))
}

// Action is the event carried by an MBO message.
type Action byte

const (
	ActionAdd    Action = 'A'
	ActionCancel Action = 'C'
	ActionModify Action = 'M'
	ActionClear  Action = 'R'
	ActionTrade  Action = 'T'
	ActionFill   Action = 'F'
	ActionNone   Action = 'N'
)

func (a Action) String() string {
	if a == 0 {
		return ""
	}
	return string(rune(a))
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// RECORDS //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// RecordHeader is the common prefix of every record in a DBN stream.
// Length is expressed in 4 byte words.
type RecordHeader struct {
	Length       uint8
	RType        uint8
	PublisherID  uint16
	InstrumentID uint32
	TsEvent      uint64
}

// MboMsg is a single market-by-order event.
type MboMsg struct {
	Header    RecordHeader
	OrderID   OrderID
	Price     Price
	Size      Quantity
	Flags     uint8
	ChannelID uint8
	Action    Action
	Side      Side
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

// EventTime returns the exchange event timestamp.
func (m MboMsg) EventTime() time.Time {
	return time.Unix(0, int64(m.Header.TsEvent)).UTC()
}

// Metadata describes the contents of a DBN stream.
type Metadata struct {
	Version uint8
	Dataset string
	Schema  uint16
	Start   uint64
	End     uint64
	Limit   uint64
	Symbols []string
}
