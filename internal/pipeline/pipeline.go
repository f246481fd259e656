// Package pipeline wires the offline report stages into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"mboflow/config"
	"mboflow/internal/metadata"
	"mboflow/internal/orderbook"
	"mboflow/internal/plot"
	"mboflow/internal/stats"
	"mboflow/internal/visualize"
	"mboflow/logger"
	"mboflow/processor"
	"mboflow/reader"
	"mboflow/writer"
)

const eventBuffer = 4096

// Pipeline runs every stage for one configuration and records the
// artifacts in a run manifest.
type Pipeline struct {
	cfg      *config.Config
	manifest *metadata.Generator
	log      *logger.Log
}

func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		manifest: metadata.NewGenerator(cfg.Mboflow.ArtifactsDir, cfg.Mboflow.Name, cfg.Mboflow.Version),
		log:      logger.GetLogger(),
	}
}

// RunID identifies the run in logs, the manifest and S3 keys.
func (p *Pipeline) RunID() string { return p.manifest.RunID() }

// Manifest exposes the artifacts recorded so far.
func (p *Pipeline) Manifest() metadata.RunManifest { return p.manifest.Manifest() }

func (p *Pipeline) implementations() []string {
	if len(p.cfg.Benchmark.Implementations) == 0 {
		return orderbook.Names
	}
	return p.cfg.Benchmark.Implementations
}

// Run executes the full pipeline and stops at the first failing stage.
func (p *Pipeline) Run(ctx context.Context) error {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.RunID()})
	start := time.Now()
	log.Info("starting pipeline")

	files, err := EnsureInput(ctx, p.cfg)
	if err != nil {
		return err
	}
	for _, f := range files {
		p.manifest.AddInput(f)
	}

	stages := []struct {
		name    string
		enabled bool
		run     func(context.Context, []string) error
	}{
		{"benchmark", true, p.Benchmark},
		{"latency_plots", true, func(context.Context, []string) error { return p.LatencyPlots() }},
		{"mbp", p.cfg.Mbp.Enabled, p.Mbp},
		{"visualize", p.cfg.Visualize.Enabled, p.Visualize},
	}
	for _, s := range stages {
		if !s.enabled {
			log.WithFields(logger.Fields{"stage": s.name}).Info("stage disabled")
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stageStart := time.Now()
		if err := s.run(ctx, files); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		logger.LogPerformanceEntry(log, "pipeline", s.name, time.Since(stageStart), nil)
	}

	if err := p.Publish(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	logger.LogPerformanceEntry(log, "pipeline", "run", time.Since(start), logger.Fields{
		"inputs":    len(files),
		"artifacts": len(p.manifest.Manifest().Artifacts),
	})
	return nil
}

// Benchmark measures every implementation over files and writes the CSV,
// plus the latency parquet file when parquet output is enabled.
func (p *Pipeline) Benchmark(ctx context.Context, files []string) error {
	bench, err := processor.NewBenchmark(p.implementations())
	if err != nil {
		return err
	}
	csvw, err := writer.NewCSVWriter(p.cfg.Benchmark.CSVPath)
	if err != nil {
		return err
	}

	var (
		sink processor.RunSink = csvw
		pq   *writer.LatencyParquetWriter
	)
	if pcfg := p.cfg.Writer.Parquet; pcfg.Enabled {
		pq, err = writer.NewLatencyParquetWriter(filepath.Join(pcfg.Dir, "latency.parquet"), p.cfg.Writer.Compression, pcfg.PageSize)
		if err != nil {
			csvw.Close()
			return err
		}
		sink = writer.TeeRuns(csvw, pq)
	}

	runs, runErr := bench.RunFiles(ctx, files, sink)
	closeErr := csvw.Close()
	if pq != nil {
		closeErr = errors.Join(closeErr, pq.Close())
	}
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	if err := p.manifest.AddFile(metadata.KindBenchmarkCSV, csvw.Path(), int64(runs), nil); err != nil {
		return err
	}
	if pq != nil {
		return p.manifest.AddFile(metadata.KindLatencyParquet, pq.Path(), int64(runs), nil)
	}
	return nil
}

// LatencyPlots renders the histograms of the benchmark CSV.
func (p *Pipeline) LatencyPlots() error {
	lcfg := p.cfg.Latency
	series, err := stats.LoadLatencyCSV(lcfg.CSVPath)
	if err != nil {
		return err
	}
	paths, err := plot.LatencyCharts(series, lcfg.OutputDir, plot.LatencyOptions{
		BinWidth: lcfg.BinWidthNs,
		Width:    lcfg.Width,
		Height:   lcfg.Height,
	})
	if err != nil {
		return err
	}
	return p.manifest.AddFiles(metadata.KindLatencyPlot, paths)
}

// Mbp replays files once per implementation and fans the records out to
// JSON, parquet and Kafka as configured.
func (p *Pipeline) Mbp(ctx context.Context, files []string) (err error) {
	openers := []processor.SinkOpener{writer.MbpJSONOpener(p.cfg.Mbp.OutputDir)}
	pcfg := p.cfg.Writer.Parquet
	mbpParquetDir := filepath.Join(pcfg.Dir, "mbp")
	if pcfg.Enabled {
		openers = append(openers, writer.MbpParquetOpener(mbpParquetDir, p.cfg.Writer.Compression, pcfg.PageSize))
	}
	if p.cfg.Storage.Kafka.Enabled {
		kw, kerr := writer.NewKafkaWriter(ctx, p.cfg)
		if kerr != nil {
			return kerr
		}
		defer func() {
			err = errors.Join(err, kw.Close())
		}()
		openers = append(openers, kw.Opener())
	}
	open := writer.TeeOpener(openers...)

	for _, impl := range p.implementations() {
		if err := ReplayMbp(ctx, files, impl, p.cfg.Mbp.MaxDepth, open); err != nil {
			return err
		}
	}

	if err := p.manifest.AddDir(metadata.KindMbpJSON, p.cfg.Mbp.OutputDir); err != nil {
		return err
	}
	if pcfg.Enabled {
		return p.manifest.AddDir(metadata.KindMbpParquet, mbpParquetDir)
	}
	return nil
}

// ReplayMbp streams files through one implementation into sinks from open.
func ReplayMbp(ctx context.Context, files []string, impl string, maxDepth int, open processor.SinkOpener) error {
	events := make(chan reader.MboEvent, eventBuffer)
	gen, err := processor.NewMbpGenerator(impl, maxDepth, events, open)
	if err != nil {
		return err
	}
	if err := gen.Start(ctx); err != nil {
		return err
	}
	r := reader.NewMboReader(files, events)
	if err := r.Start(ctx); err != nil {
		close(events)
		gen.Stop()
		return err
	}
	r.Stop()
	gen.Stop()
	return errors.Join(r.Err(), gen.Err())
}

// Visualize renders the order book charts of every file. Files without
// MBO data are skipped with a warning.
func (p *Pipeline) Visualize(ctx context.Context, files []string) error {
	vcfg := p.cfg.Visualize
	log := p.log.WithComponent("pipeline")
	opts := visualize.Options{
		MaxTimeSeriesPoints: vcfg.MaxTimeSeriesPoints,
		MaxHeatmapSnapshots: vcfg.MaxHeatmapSnapshots,
		PriceScaleThreshold: vcfg.PriceScaleThreshold,
	}
	prefix := vcfg.OutputPrefix
	if prefix == "" {
		prefix = visualize.DefaultOutputPrefix
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		paths, err := visualize.VisualizeFile(f, opts, visualize.RenderOptions{
			OutputDir: vcfg.OutputDir,
			Prefix:    prefix + "_" + Stem(f),
			Width:     vcfg.Width,
			Height:    vcfg.Height,
		})
		if errors.Is(err, visualize.ErrNoMBOData) {
			log.WithError(err).WithFields(logger.Fields{"path": f}).Warn("skipping visualization")
			continue
		}
		if err != nil {
			return err
		}
		if err := p.manifest.AddFiles(metadata.KindVisualization, paths); err != nil {
			return err
		}
	}
	return nil
}

// Publish writes the run manifest and catalog entry, then uploads the
// artifacts tree when S3 storage is enabled.
func (p *Pipeline) Publish(ctx context.Context) error {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.RunID()})
	root := p.cfg.Mboflow.ArtifactsDir

	var uploader *writer.S3Uploader
	if p.cfg.Storage.S3.Enabled {
		u, err := writer.NewS3Uploader(ctx, p.cfg)
		if err != nil {
			return err
		}
		uploader = u
		p.manifest.SetLocation(u.Location(p.RunID()))
	} else if config.IsProductionLike(config.AppEnvironment()) {
		log.WithEnv("APP_ENV").Warn("s3 storage disabled, artifacts stay local")
	}

	path, err := p.manifest.Write()
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := p.manifest.WriteCatalogEntry(filepath.Join(root, "catalog")); err != nil {
		return fmt.Errorf("failed to write catalog entry: %w", err)
	}
	log.WithFields(logger.Fields{"manifest": path}).Info("run manifest written")

	if uploader == nil {
		return nil
	}
	objects, err := uploader.UploadDir(ctx, root, p.RunID())
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"objects":  len(objects),
		"location": uploader.Location(p.RunID()),
	}).Info("artifacts uploaded")
	return nil
}
