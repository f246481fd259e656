package metrics

import "mboflow/logger"

// LatencySummary holds the distribution of one benchmark run.
type LatencySummary struct {
	Source         string
	Implementation string
	Messages       int
	TotalNs        int64
	MeanNs         float64
	P50Ns          int64
	P99Ns          int64
	MaxNs          int64
}

// ReportLatency emits the latency distribution of a book implementation.
func ReportLatency(log *logger.Log, s LatencySummary) {
	if log == nil {
		log = logger.GetLogger()
	}
	dims := func() logger.Fields {
		return logger.Fields{"implementation": s.Implementation, "unit": "ns"}
	}

	EmitMetric(log, "benchmark", "latency_p50_ns", s.P50Ns, "gauge", dims())
	EmitMetric(log, "benchmark", "latency_p99_ns", s.P99Ns, "gauge", dims())
	EmitMetric(log, "benchmark", "latency_mean_ns", s.MeanNs, "gauge", dims())

	throughput := float64(0)
	if s.TotalNs > 0 {
		throughput = float64(s.Messages) / (float64(s.TotalNs) / 1e9)
	}

	log.WithComponent("benchmark").WithFields(logger.Fields{
		"source":          s.Source,
		"implementation":  s.Implementation,
		"messages":        s.Messages,
		"total_ns":        s.TotalNs,
		"mean_ns":         s.MeanNs,
		"p50_ns":          s.P50Ns,
		"p99_ns":          s.P99Ns,
		"max_ns":          s.MaxNs,
		"messages_per_s": throughput,
	}).Info("benchmark run summary")
}
