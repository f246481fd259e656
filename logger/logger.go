// Package logger is the structured logrus logger shared by every mboflow
// command, plus process counters and the optional runtime report.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LevelEnvVar overrides the configured level.
const LevelEnvVar = "LOG_LEVEL"

// reportLevel logs at info and turns on the periodic runtime report.
const reportLevel = "report"

// Fields mirrors logrus.Fields.
type Fields map[string]interface{}

type Log struct {
	*logrus.Logger
}

type Entry struct {
	*logrus.Entry
}

var globalLogger = Logger()

func GetLogger() *Log { return globalLogger }

func shortCaller(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "json", "":
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
			CallerPrettyfier: shortCaller,
		}, nil
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: shortCaller,
		}, nil
	}
	return nil, fmt.Errorf("invalid log format '%s'", format)
}

// effectiveLevel applies the LOG_LEVEL override.
func effectiveLevel(configured string) string {
	if env := os.Getenv(LevelEnvVar); env != "" {
		return env
	}
	return configured
}

func parseLevel(level string) (logrus.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == reportLevel {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(level)
}

// ReportEnabled reports whether level, after the LOG_LEVEL override, asks
// for the runtime report.
func ReportEnabled(level string) bool {
	return strings.EqualFold(strings.TrimSpace(effectiveLevel(level)), reportLevel)
}

// Logger builds a JSON logger at the LOG_LEVEL level, info by default.
func Logger() *Log {
	l := logrus.New()
	l.SetReportCaller(true)
	l.AddHook(callerHook{})
	if lvl, err := parseLevel(effectiveLevel("info")); err == nil {
		l.SetLevel(lvl)
	}
	f, _ := newFormatter("json")
	l.SetFormatter(f)
	return &Log{Logger: l}
}

// openOutput resolves stdout, stderr or a file path. Files rotate through
// lumberjack when maxAge is positive.
func openOutput(output string, maxAge int) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for '%s': %w", output, err)
	}
	if maxAge > 0 {
		return &lumberjack.Logger{Filename: output, MaxAge: maxAge, MaxSize: 100, Compress: true}, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", output, err)
	}
	return file, nil
}

// Configure applies the logging section of the configuration.
func (l *Log) Configure(level, format, output string, maxAge int) error {
	level = effectiveLevel(level)
	lvl, err := parseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", level)
	}
	formatter, err := newFormatter(format)
	if err != nil {
		return err
	}
	w, err := openOutput(output, maxAge)
	if err != nil {
		return err
	}

	l.SetLevel(lvl)
	l.SetFormatter(formatter)
	l.SetOutput(w)
	l.SetReportCaller(true)
	return nil
}

func envFields(names []string) logrus.Fields {
	fields := make(logrus.Fields, len(names))
	for _, name := range names {
		fields[name] = os.Getenv(name)
	}
	return fields
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

// WithEnv adds the current value of each named environment variable.
func (l *Log) WithEnv(names ...string) *Entry {
	return &Entry{Entry: l.Logger.WithFields(envFields(names))}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

func (e *Entry) WithEnv(names ...string) *Entry {
	return &Entry{Entry: e.Entry.WithFields(envFields(names))}
}

func (e *Entry) component() (string, bool) {
	c, ok := e.Entry.Data["component"].(string)
	return c, ok
}

// Warn and Error also feed the per component counters of the runtime
// report.
func (e *Entry) Warn(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordWarn(c)
	}
	e.Entry.Warn(args...)
}

func (e *Entry) Error(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordError(c)
	}
	e.Entry.Error(args...)
}

// LogPerformanceEntry logs how long one operation of component took.
func LogPerformanceEntry(entry *Entry, component, operation string, took time.Duration, fields Fields) {
	merged := Fields{
		"duration_ms": float64(took.Nanoseconds()) / 1e6,
		"operation":   operation,
	}
	for k, v := range fields {
		merged[k] = v
	}
	entry.WithFields(merged).WithComponent(component).Info("performance metric")
}

// LogDataFlowEntry logs records moving from source to destination.
func LogDataFlowEntry(entry *Entry, source, destination string, records int, dataType string) {
	entry.WithFields(Fields{
		"source":       source,
		"destination":  destination,
		"record_count": records,
		"data_type":    dataType,
		"flow_type":    "data_flow",
	}).Info("data flow metric")
}
