// Command plotstats renders latency histograms from a benchmark CSV.
package main

import (
	"flag"
	"os"

	"mboflow/internal/cli"
	"mboflow/internal/plot"
	"mboflow/internal/stats"
	"mboflow/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	csvPath := flag.String("csv", "", "Benchmark CSV (defaults to latency.csv_path)")
	outDir := flag.String("out", "", "Output directory (defaults to latency.output_dir)")
	binWidth := flag.Int64("bin", 0, "Histogram bin width in nanoseconds")

	if _, err := cli.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := cli.Setup(*configPath)
	log := logger.GetLogger().WithComponent("plotstats")
	if err != nil {
		cli.Fatal(log, err, "Failed to load configuration")
	}

	lcfg := cfg.Latency
	if *csvPath != "" {
		lcfg.CSVPath = *csvPath
	}
	if *outDir != "" {
		lcfg.OutputDir = *outDir
	}
	if *binWidth > 0 {
		lcfg.BinWidthNs = *binWidth
	}
	if lcfg.BinWidthNs <= 0 {
		lcfg.BinWidthNs = stats.DefaultBinWidth
	}

	series, err := stats.LoadLatencyCSV(lcfg.CSVPath)
	if err != nil {
		cli.Fatal(log.WithFields(logger.Fields{"csv": lcfg.CSVPath}), err, "Failed to load benchmark results")
	}
	for _, s := range stats.Group(series) {
		summary, err := stats.Summarize(s.Durations)
		if err != nil {
			continue
		}
		log.WithFields(logger.Fields{
			"label":   s.Label,
			"count":   summary.Count,
			"mean_ns": summary.Mean,
			"p50_ns":  summary.P50,
			"p99_ns":  summary.P99,
		}).Info("latency summary")
	}

	paths, err := plot.LatencyCharts(series, lcfg.OutputDir, plot.LatencyOptions{
		BinWidth: lcfg.BinWidthNs,
		Width:    lcfg.Width,
		Height:   lcfg.Height,
	})
	if err != nil {
		cli.Fatal(log, err, "Failed to render latency charts")
	}
	log.WithFields(logger.Fields{
		"charts": len(paths),
		"dir":    lcfg.OutputDir,
	}).Info("latency charts written")
}
