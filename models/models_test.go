package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMbpRecordJSONKeys(t *testing.T) {
	msg := MboMsg{
		Header:   RecordHeader{Length: 14, RType: RTypeMBO, PublisherID: 2, InstrumentID: 7, TsEvent: 99},
		OrderID:  1,
		Price:    10000,
		Size:     5,
		Action:   ActionAdd,
		Side:     SideBid,
		TsRecv:   100,
		Sequence: 3,
	}
	rec := NewMbpRecord(msg, []Level{{BidCount: 1, BidPrice: 10000, BidSize: 5}})
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`"action":"A"`, `"side":"B"`, `"rtype":160`, `"instrument_id":7`,
		`"ask_ct":0`, `"bid_px":10000`, `"bid_sz":5`, `"sequence":3`, `"ts_recv":100`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}

	var back MbpRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Action != ActionAdd || back.Side != SideBid {
		t.Fatalf("unexpected action/side: %q %q", back.Action, back.Side)
	}
}

func TestNewMbpRecordEmptyLevels(t *testing.T) {
	rec := NewMbpRecord(MboMsg{Action: ActionCancel}, nil)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"levels":[]`) {
		t.Fatalf("expected empty levels array, got %s", data)
	}
}

func TestLatencyRunLabel(t *testing.T) {
	r := LatencyRun{Source: "FlashCrash.dbn", Implementation: "FlatOrderBook"}
	if got := r.Label(); got != "FlashCrash.dbnFlatOrderBook" {
		t.Fatalf("unexpected label %q", got)
	}
}
