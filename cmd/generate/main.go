// Command generate writes synthetic MBO test files, one per market
// condition. With no condition argument the default set is generated.
package main

import (
	"flag"
	"os"

	"mboflow/internal/cli"
	"mboflow/internal/pipeline"
	"mboflow/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	outDir := flag.String("out", "", "Directory the .dbn files are written to")
	messages := flag.Int("messages", 0, "Messages per file (0 uses the configured count)")
	seed := flag.Int64("seed", 0, "Random seed (0 seeds from the clock)")

	args, err := cli.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := cli.Setup(*configPath)
	log := logger.GetLogger().WithComponent("generate")
	if err != nil {
		cli.Fatal(log, err, "Failed to load configuration")
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	names := args
	if len(names) == 0 {
		names = cfg.Generator.Conditions
	}
	conditions, err := pipeline.Conditions(names)
	if err != nil {
		cli.Fatal(log, err, "Invalid market condition")
	}

	params := pipeline.GeneratorParams(cfg)
	if *messages > 0 {
		params.Messages = *messages
	}
	if *seed != 0 {
		params.Seed = *seed
	}
	dir := cfg.Generator.OutputDir
	if *outDir != "" {
		dir = *outDir
	}

	paths, err := pipeline.Generate(ctx, dir, conditions, params)
	if err != nil {
		cli.Fatal(log, err, "Failed to generate test data")
	}
	log.WithFields(logger.Fields{
		"files":    len(paths),
		"dir":      dir,
		"messages": params.Messages,
	}).Info("test data generated")
}
