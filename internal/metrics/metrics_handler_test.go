package metrics

import (
	"testing"

	"mboflow/logger"
)

func resetMetricHandlers() {
	handlers = newHandlerRegistry()
}

// captureMetrics records every metric emitted during the test.
func captureMetrics(t *testing.T) *[]Metric {
	t.Helper()
	resetMetricHandlers()
	var got []Metric
	id := RegisterMetricHandler(func(m Metric) { got = append(got, m) })
	t.Cleanup(func() { UnregisterMetricHandler(id) })
	return &got
}

func TestRegisterMetricHandlerIDs(t *testing.T) {
	resetMetricHandlers()

	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("nil handler registered as %d", id)
	}
	first := RegisterMetricHandler(func(Metric) {})
	second := RegisterMetricHandler(func(Metric) {})
	if first == 0 || second == 0 || first == second {
		t.Fatalf("ids not unique and non-zero: %d %d", first, second)
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	resetMetricHandlers()

	var order []int
	for i := 1; i <= 3; i++ {
		RegisterMetricHandler(func(Metric) { order = append(order, i) })
	}
	EmitMetric(nil, "replay", "messages_replayed", 1, "", nil)
	if len(order) != 3 || order[0] != 1 || order[2] != 3 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestUnregisterMetricHandler(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	UnregisterMetricHandler(id)
	UnregisterMetricHandler(0)
	EmitMetric(nil, "replay", "messages_replayed", 1, "", nil)
	if calls != 0 {
		t.Fatalf("unregistered handler called %d times", calls)
	}
}

func TestEmitMetricDispatchesCopy(t *testing.T) {
	got := captureMetrics(t)

	fields := logger.Fields{"implementation": "OrderBook", "unit": "count"}
	EmitMetric(logger.Logger(), "benchmark", "messages_replayed", 3, "gauge", fields)

	if len(*got) != 1 {
		t.Fatalf("expected one metric, got %d", len(*got))
	}
	m := (*got)[0]
	if m.Component != "benchmark" || m.Name != "messages_replayed" || m.Type != "gauge" || m.Value != 3 {
		t.Fatalf("unexpected metric: %+v", m)
	}
	if _, ok := fields["metric"]; ok {
		t.Fatalf("caller fields mutated: %v", fields)
	}
	if _, ok := m.Fields["metric"]; ok {
		t.Fatalf("log-only keys leaked into metric fields: %v", m.Fields)
	}
	if m.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestEmitMetricDefaultsAndEmptyName(t *testing.T) {
	got := captureMetrics(t)

	EmitMetric(nil, "order_book", "updates", 7, "", logger.Fields{"unit": "count"})
	EmitMetric(nil, "order_book", "", 1, "counter", nil)

	if len(*got) != 1 {
		t.Fatalf("expected only the named metric, got %d", len(*got))
	}
	if (*got)[0].Type != "counter" {
		t.Fatalf("default type should be counter, got %s", (*got)[0].Type)
	}
}

func TestEmitSkipMetric(t *testing.T) {
	got := captureMetrics(t)

	EmitSkipMetric(nil, "dbn_reader", SkipMetricNonMBO, 0, "a.dbn", "decode")
	EmitSkipMetric(nil, "dbn_reader", SkipMetricNonMBO, 4, "a.dbn", "decode")

	if len(*got) != 1 {
		t.Fatalf("expected one metric, got %d", len(*got))
	}
	if (*got)[0].Name != string(SkipMetricNonMBO) || (*got)[0].Value != 4 {
		t.Fatalf("unexpected metric: %+v", (*got)[0])
	}
	if (*got)[0].Fields["source"] != "a.dbn" || (*got)[0].Fields["stage"] != "decode" {
		t.Fatalf("unexpected fields: %v", (*got)[0].Fields)
	}
}

func TestReportLatency(t *testing.T) {
	resetMetricHandlers()

	got := map[string]interface{}{}
	id := RegisterMetricHandler(func(m Metric) {
		got[m.Name] = m.Value
		if m.Fields["implementation"] != "FlatOrderBook" {
			t.Errorf("implementation dimension missing: %v", m.Fields)
		}
	})
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	ReportLatency(nil, LatencySummary{
		Source:         "FlashCrash.dbn",
		Implementation: "FlatOrderBook",
		Messages:       10,
		TotalNs:        1000,
		MeanNs:         100,
		P50Ns:          90,
		P99Ns:          300,
		MaxNs:          310,
	})

	if got["latency_p50_ns"] != int64(90) || got["latency_p99_ns"] != int64(300) || got["latency_mean_ns"] != float64(100) {
		t.Fatalf("unexpected metrics: %v", got)
	}
}

func TestReportWriter(t *testing.T) {
	resetMetricHandlers()

	got := map[string]interface{}{}
	id := RegisterMetricHandler(func(m Metric) { got[m.Name] = m.Value })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	ReportWriter(nil, "mbp_json_writer", WriterStats{RecordsWritten: 5, FilesWritten: 1, BytesWritten: 512})

	if got["records_written"] != int64(5) || got["bytes_written"] != int64(512) {
		t.Fatalf("unexpected metrics: %v", got)
	}
}

func TestWriterStatsRates(t *testing.T) {
	s := WriterStats{FilesWritten: 3, ErrorsCount: 1, BytesWritten: 300}
	if got := s.ErrorRate(); got != 0.25 {
		t.Fatalf("unexpected error rate: %v", got)
	}
	if got := s.BytesPerFile(); got != 100 {
		t.Fatalf("unexpected bytes per file: %v", got)
	}
	if (WriterStats{}).ErrorRate() != 0 || (WriterStats{}).BytesPerFile() != 0 {
		t.Fatal("empty stats should report zero rates")
	}
}
