package metrics

import "mboflow/logger"

// SkipMetric identifies the metric name emitted when input records are ignored.
type SkipMetric string

const (
	// SkipMetricNonMBO records DBN records of another schema.
	SkipMetricNonMBO SkipMetric = "records_skipped"
	// SkipMetricOtherInstrument records MBO records of a second instrument.
	SkipMetricOtherInstrument SkipMetric = "other_instrument_skipped"
	// SkipMetricUnknownOrder records cancels and modifies of orders never seen.
	SkipMetricUnknownOrder SkipMetric = "unknown_order_skipped"
)

// EmitSkipMetric logs and emits the number of records a stage ignored. Zero
// counts are not emitted. source and stage are attached as dimensions when set.
func EmitSkipMetric(log *logger.Log, component string, metric SkipMetric, count int, source, stage string) {
	if count <= 0 {
		return
	}
	fields := logger.Fields{}
	if source != "" {
		fields["source"] = source
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, component, string(metric), count, "counter", fields)
}
