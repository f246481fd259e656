// Command visualize rebuilds the order book of one DBN file and renders
// its prices, spread, depth and cumulative volume delta.
package main

import (
	"flag"
	"fmt"
	"os"

	"mboflow/internal/cli"
	"mboflow/internal/visualize"
	"mboflow/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	prefix := flag.String("output_prefix", visualize.DefaultOutputPrefix, "Prefix of the output image files")
	outDir := flag.String("out", ".", "Output directory")

	args, err := cli.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := cli.Setup(*configPath)
	log := logger.GetLogger().WithComponent("visualize")
	if err != nil {
		cli.Fatal(log, err, "Failed to load configuration")
	}
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s <dbn_file> [--output_prefix P] [-out dir]\n", os.Args[0])
		os.Exit(2)
	}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		cli.Fatal(log.WithFields(logger.Fields{"path": path}), err, "Input file not found")
	}

	vcfg := cfg.Visualize
	paths, err := visualize.VisualizeFile(path, visualize.Options{
		MaxTimeSeriesPoints: vcfg.MaxTimeSeriesPoints,
		MaxHeatmapSnapshots: vcfg.MaxHeatmapSnapshots,
		PriceScaleThreshold: vcfg.PriceScaleThreshold,
	}, visualize.RenderOptions{
		OutputDir: *outDir,
		Prefix:    *prefix,
		Width:     vcfg.Width,
		Height:    vcfg.Height,
	})
	if err != nil {
		cli.Fatal(log.WithFields(logger.Fields{"path": path}), err, "Visualization failed")
	}
	log.WithFields(logger.Fields{
		"files": len(paths),
		"dir":   *outDir,
	}).Info("visualization written")
}
