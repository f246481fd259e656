// Command benchmark replays every DBN file under a path through each
// order book implementation and writes per-message latencies to CSV.
package main

import (
	"flag"
	"os"
	"strings"

	"mboflow/internal/cli"
	"mboflow/logger"
	"mboflow/processor"
	"mboflow/reader"
	"mboflow/writer"
)

const defaultInput = "../resources/test_data/"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	csvPath := flag.String("csv", "", "Output CSV path (defaults to benchmark.csv_path)")
	impls := flag.String("impl", "", "Comma separated implementations to run")

	args, err := cli.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := cli.Setup(*configPath)
	log := logger.GetLogger().WithComponent("benchmark")
	if err != nil {
		cli.Fatal(log, err, "Failed to load configuration")
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	input := defaultInput
	if len(args) > 0 {
		input = args[0]
	}
	files, err := reader.DiscoverDBNFiles(input, cfg.Input.Extensions...)
	if err != nil {
		cli.Fatal(log.WithFields(logger.Fields{"path": input}), err, "No input data")
	}

	names := cfg.Benchmark.Implementations
	if *impls != "" {
		names = strings.Split(*impls, ",")
	}
	bench, err := processor.NewBenchmark(names)
	if err != nil {
		cli.Fatal(log, err, "Invalid implementation")
	}

	out := cfg.Benchmark.CSVPath
	if *csvPath != "" {
		out = *csvPath
	}
	w, err := writer.NewCSVWriter(out)
	if err != nil {
		cli.Fatal(log, err, "Failed to create CSV writer")
	}

	runs, err := bench.RunFiles(ctx, files, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cli.Fatal(log, err, "Benchmark failed")
	}
	log.WithFields(logger.Fields{
		"files": len(files),
		"runs":  runs,
		"csv":   w.Path(),
	}).Info("benchmark results written")
}
