// Package cli holds the start-up steps shared by the command mains.
package cli

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mboflow/config"
	"mboflow/logger"
)

// Setup loads .env, the configuration at configPath and configures the
// global logger. An empty configPath resolves the default file for
// APP_ENV and falls back to built-in defaults when it does not exist.
func Setup(configPath string) (*config.Config, error) {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration without touching the logger.
func Load(configPath string) (*config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if configPath == "" && errors.Is(err, fs.ErrNotExist) {
		logger.GetLogger().WithComponent("cli").WithFields(logger.Fields{
			"path": path,
		}).Debug("no configuration file, using defaults")
		d := config.Default()
		return &d, nil
	}
	return nil, err
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Parse parses args with set, allowing flags after positional arguments,
// and returns the positional arguments in order.
func Parse(set *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := set.Parse(args); err != nil {
			return nil, err
		}
		args = set.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// Fatal logs err and exits with status 1.
func Fatal(entry *logger.Entry, err error, msg string) {
	entry.WithError(err).Error(msg)
	os.Exit(1)
}
