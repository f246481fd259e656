// Command mbpjson replays DBN files through each order book implementation
// and dumps the market-by-price state after every message as JSON.
package main

import (
	"flag"
	"os"

	"mboflow/internal/cli"
	"mboflow/internal/orderbook"
	"mboflow/internal/pipeline"
	"mboflow/logger"
	"mboflow/reader"
	"mboflow/writer"
)

const defaultInput = "../resources/test_data/"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	outDir := flag.String("out", "", "Output directory (defaults to mbp.output_dir)")
	depth := flag.Int("depth", -1, "Levels per side, 0 for all (defaults to mbp.max_depth)")

	args, err := cli.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := cli.Setup(*configPath)
	log := logger.GetLogger().WithComponent("mbpjson")
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

	dir := cfg.Mbp.OutputDir
	if *outDir != "" {
		dir = *outDir
	}
	maxDepth := cfg.Mbp.MaxDepth
	if *depth >= 0 {
		maxDepth = *depth
	}

	open := writer.MbpJSONOpener(dir)
	for _, impl := range orderbook.Names {
		if err := pipeline.ReplayMbp(ctx, files, impl, maxDepth, open); err != nil {
			cli.Fatal(log.WithFields(logger.Fields{"implementation": impl}), err, "Failed to generate MBP JSON")
		}
	}
	log.WithFields(logger.Fields{
		"files": len(files),
		"dir":   dir,
	}).Info("mbp json written")
}
