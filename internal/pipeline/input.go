package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mboflow/config"
	"mboflow/internal/generator"
	"mboflow/logger"
	"mboflow/models"
	"mboflow/reader"
)

// GeneratorParams overlays the configured generator settings on the
// defaults. Zero values keep the default.
func GeneratorParams(cfg *config.Config) generator.Params {
	p := generator.DefaultParams()
	g := cfg.Generator
	if g.Messages > 0 {
		p.Messages = g.Messages
	}
	if g.InitialLevels > 0 {
		p.InitialLevels = g.InitialLevels
	}
	if g.InitialMidPrice > 0 {
		p.InitialMidPrice = models.Price(g.InitialMidPrice)
	}
	if g.PriceTick > 0 {
		p.PriceTick = models.Price(g.PriceTick)
	}
	p.Seed = g.Seed
	return p
}

// Conditions parses condition names. No names selects the default set.
func Conditions(names []string) ([]generator.MarketCondition, error) {
	if len(names) == 0 {
		return generator.DefaultConditions(), nil
	}
	out := make([]generator.MarketCondition, 0, len(names))
	for _, name := range names {
		c, err := generator.ParseCondition(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Generate writes one file per condition into dir and returns their paths.
func Generate(ctx context.Context, dir string, conditions []generator.MarketCondition, params generator.Params) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := make([]string, 0, len(conditions))
	for _, c := range conditions {
		path, err := generator.GenerateFile(ctx, dir, c, params)
		if err != nil {
			return paths, fmt.Errorf("failed to generate %s: %w", c, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// EnsureInput returns the configured input files. When the input path is
// missing or holds no DBN files, test data is generated first.
func EnsureInput(ctx context.Context, cfg *config.Config) ([]string, error) {
	files, err := reader.DiscoverDBNFiles(cfg.Input.Path, cfg.Input.Extensions...)
	if err == nil {
		return files, nil
	}
	if !errors.Is(err, reader.ErrNoDBNFiles) && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	conditions, cerr := Conditions(cfg.Generator.Conditions)
	if cerr != nil {
		return nil, cerr
	}
	logger.GetLogger().WithComponent("pipeline").WithFields(logger.Fields{
		"input":      cfg.Input.Path,
		"output_dir": cfg.Generator.OutputDir,
		"conditions": len(conditions),
	}).Warn("no input data found, generating test data")
	return Generate(ctx, cfg.Generator.OutputDir, conditions, GeneratorParams(cfg))
}

// Stem is a file name without its directory and DBN extensions.
func Stem(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, ".dbn")
}
