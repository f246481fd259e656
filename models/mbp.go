package models

import (
	"encoding/json"
	"time"
)

// Level is one row of a market-by-price snapshot pairing the n-th best ask
// with the n-th best bid. Missing sides are zero.
type Level struct {
	AskCount uint32 `json:"ask_ct"`
	AskPrice Price  `json:"ask_px"`
	AskSize  uint64 `json:"ask_sz"`
	BidCount uint32 `json:"bid_ct"`
	BidPrice Price  `json:"bid_px"`
	BidSize  uint64 `json:"bid_sz"`
}

// MbpHeader mirrors the record header inside an MbpRecord.
type MbpHeader struct {
	InstrumentID uint32 `json:"instrument_id"`
	Length       uint8  `json:"length"`
	PublisherID  uint16 `json:"publisher_id"`
	RType        uint8  `json:"rtype"`
	TsEvent      uint64 `json:"ts_event"`
}

// MbpRecord is the book state after applying one MBO message.
type MbpRecord struct {
	Action   Action    `json:"action"`
	Header   MbpHeader `json:"hd"`
	Levels   []Level   `json:"levels"`
	Price    Price     `json:"price"`
	Sequence uint32    `json:"sequence"`
	Side     Side      `json:"side"`
	Size     Quantity  `json:"size"`
	TsRecv   uint64    `json:"ts_recv"`
}

// NewMbpRecord builds the record for msg with the given levels.
func NewMbpRecord(msg MboMsg, levels []Level) MbpRecord {
	if levels == nil {
		levels = []Level{}
	}
	return MbpRecord{
		Action: msg.Action,
		Header: MbpHeader{
			InstrumentID: msg.Header.InstrumentID,
			Length:       msg.Header.Length,
			PublisherID:  msg.Header.PublisherID,
			RType:        msg.Header.RType,
			TsEvent:      msg.Header.TsEvent,
		},
		Levels:   levels,
		Price:    msg.Price,
		Sequence: msg.Sequence,
		Side:     msg.Side,
		Size:     msg.Size,
		TsRecv:   msg.TsRecv,
	}
}

// MarshalJSON writes single character fields as strings.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = 0
		return nil
	}
	*a = Action(s[0])
	return nil
}

// MarshalJSON writes single character fields as strings.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (s *Side) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == "" {
		*s = 0
		return nil
	}
	*s = Side(v[0])
	return nil
}

// MbpBatch groups records headed for a sink.
type MbpBatch struct {
	BatchID        string      `json:"batch_id"`
	Source         string      `json:"source"`
	Implementation string      `json:"implementation"`
	Records        []MbpRecord `json:"records"`
	RecordCount    int         `json:"record_count"`
	Timestamp      time.Time   `json:"timestamp"`
}
