package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"mboflow/internal/cli"
	"mboflow/internal/metrics"
	"mboflow/internal/pipeline"
	"mboflow/logger"
)

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", "", "Path to configuration file (defaults to config/config.yml for APP_ENV)")
	flag.Parse()

	cfg, err := cli.Setup(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Mboflow.Name,
		"version": cfg.Mboflow.Version,
	}).WithEnv("APP_ENV").Info("starting mboflow")

	ctx, cancel := cli.SignalContext()
	defer cancel()

	if logger.ReportEnabled(cfg.Logging.Level) {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		metrics.SetPublishInterval(cw.Throttle)
		metrics.InitCloudWatch(ctx, cw.Region, cw.Namespace, cw.Dashboard)
		logger.InitCloudWatch(cw.Region, cw.Namespace, cw.Dashboard)
	}

	p := pipeline.New(cfg)
	err = p.Run(ctx)
	logger.LogReport(context.Background(), log)
	if errors.Is(err, context.Canceled) {
		log.WithComponent("main").Warn("run cancelled")
		os.Exit(1)
	}
	if err != nil {
		log.WithComponent("main").WithError(err).WithFields(logger.Fields{"run_id": p.RunID()}).Error("pipeline failed")
		os.Exit(1)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"run_id":    p.RunID(),
		"artifacts": len(p.Manifest().Artifacts),
	}).Info("mboflow finished")
}
