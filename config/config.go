package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mboflow   MboflowConfig   `yaml:"mboflow"`
	Input     InputConfig     `yaml:"input"`
	Generator GeneratorConfig `yaml:"generator"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Mbp       MbpConfig       `yaml:"mbp"`
	Visualize VisualizeConfig `yaml:"visualize"`
	Latency   LatencyConfig   `yaml:"latency"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type MboflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// ArtifactsDir is the root every relative output directory is placed under.
	ArtifactsDir string `yaml:"artifacts_dir"`
}

type InputConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
}

type GeneratorConfig struct {
	Messages        int      `yaml:"messages"`
	InitialLevels   int      `yaml:"initial_levels"`
	InitialMidPrice int64    `yaml:"initial_mid_price"`
	PriceTick       int64    `yaml:"price_tick"`
	Seed            int64    `yaml:"seed"`
	Conditions      []string `yaml:"conditions"`
	OutputDir       string   `yaml:"output_dir"`
}

type BenchmarkConfig struct {
	Implementations []string `yaml:"implementations"`
	CSVPath         string   `yaml:"csv_path"`
}

type MbpConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	MaxDepth  int    `yaml:"max_depth"`
}

type VisualizeConfig struct {
	Enabled             bool    `yaml:"enabled"`
	OutputDir           string  `yaml:"output_dir"`
	OutputPrefix        string  `yaml:"output_prefix"`
	MaxTimeSeriesPoints int     `yaml:"max_time_series_points"`
	MaxHeatmapSnapshots int     `yaml:"max_heatmap_snapshots"`
	PriceScaleThreshold float64 `yaml:"price_scale_threshold"`
	Width               int     `yaml:"width"`
	Height              int     `yaml:"height"`
}

type LatencyConfig struct {
	CSVPath    string `yaml:"csv_path"`
	OutputDir  string `yaml:"output_dir"`
	BinWidthNs int64  `yaml:"bin_width_ns"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

type WriterConfig struct {
	Compression string        `yaml:"compression"`
	Parquet     ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	PageSize int    `yaml:"page_size"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled           bool          `yaml:"enabled"`
	Bucket            string        `yaml:"bucket"`
	Prefix            string        `yaml:"prefix"`
	Region            string        `yaml:"region"`
	Endpoint          string        `yaml:"endpoint"`
	PathStyle         bool          `yaml:"path_style"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	AccessKeyID       string        `yaml:"access_key_id"`
	SecretAccessKey   string        `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batch_size"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Region    string        `yaml:"region"`
	Namespace string        `yaml:"namespace"`
	Dashboard string        `yaml:"dashboard"`
	Throttle  time.Duration `yaml:"throttle"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
	// ReportInterval drives the periodic runtime report when level is "report".
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Default returns the configuration used when no file is given and the
// base every file is merged onto.
func Default() Config {
	return Config{
		Mboflow: MboflowConfig{
			Name:         "mboflow",
			Version:      "1.0.0",
			ArtifactsDir: "artifacts",
		},
		Input: InputConfig{
			Path:       "resources/test_data",
			Extensions: []string{".dbn", ".dbn.zst"},
		},
		Generator: GeneratorConfig{
			Messages:        500000,
			InitialLevels:   100,
			InitialMidPrice: 100000000000,
			PriceTick:       1000000,
			OutputDir:       "resources/test_data",
		},
		Benchmark: BenchmarkConfig{
			Implementations: []string{"OrderBook", "FlatOrderBook"},
			CSVPath:         "artifacts/benchmark_results.csv",
		},
		Mbp: MbpConfig{
			Enabled:   true,
			OutputDir: "artifacts/mbp",
		},
		Visualize: VisualizeConfig{
			Enabled:             true,
			OutputDir:           "artifacts/vis/mbo",
			MaxTimeSeriesPoints: 1000,
			MaxHeatmapSnapshots: 200,
			PriceScaleThreshold: 1e9,
			Width:               1500,
			Height:              900,
		},
		Latency: LatencyConfig{
			CSVPath:    "artifacts/benchmark_results.csv",
			OutputDir:  "artifacts/vis/latency",
			BinWidthNs: 30,
			Width:      1200,
			Height:     800,
		},
		Writer: WriterConfig{
			Compression: "snappy",
			Parquet: ParquetConfig{
				Dir:      "artifacts/parquet",
				PageSize: 8192,
			},
		},
		Storage: StorageConfig{
			S3: S3Config{
				Prefix:            "mboflow",
				UploadConcurrency: 4,
				RequestsPerSecond: 10,
				Timeout:           30 * time.Second,
			},
			Kafka: KafkaConfig{
				Topic:     "mboflow.mbp",
				BatchSize: 1000,
			},
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{
				Namespace: "Mboflow",
				Dashboard: "Mboflow",
				Throttle:  time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: time.Minute,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Storage.Kafka.Brokers = brokers
	}

	if v := strings.TrimSpace(os.Getenv("MBOFLOW_ARTIFACTS_DIR")); v != "" {
		config.rebaseArtifacts(v)
	}
}

// rebaseArtifacts moves every output path that lives under the current
// artifacts dir to dir.
func (c *Config) rebaseArtifacts(dir string) {
	old := strings.TrimSuffix(c.Mboflow.ArtifactsDir, "/")
	for _, p := range []*string{
		&c.Benchmark.CSVPath,
		&c.Mbp.OutputDir,
		&c.Visualize.OutputDir,
		&c.Latency.CSVPath,
		&c.Latency.OutputDir,
		&c.Writer.Parquet.Dir,
	} {
		if old != "" && (*p == old || strings.HasPrefix(*p, old+"/")) {
			*p = dir + strings.TrimPrefix(*p, old)
		}
	}
	c.Mboflow.ArtifactsDir = dir
}

func validateConfig(cfg *Config) error {
	if cfg.Mboflow.Name == "" {
		return fmt.Errorf("mboflow.name is required")
	}

	if cfg.Mboflow.Version == "" {
		return fmt.Errorf("mboflow.version is required")
	}

	if cfg.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}

	if cfg.Generator.Messages <= 0 {
		return fmt.Errorf("generator.messages must be greater than 0")
	}
	if cfg.Generator.InitialMidPrice <= 0 {
		return fmt.Errorf("generator.initial_mid_price must be greater than 0")
	}
	if cfg.Generator.PriceTick <= 0 {
		return fmt.Errorf("generator.price_tick must be greater than 0")
	}

	if len(cfg.Benchmark.Implementations) == 0 {
		return fmt.Errorf("benchmark.implementations is required")
	}
	if cfg.Benchmark.CSVPath == "" {
		return fmt.Errorf("benchmark.csv_path is required")
	}

	if cfg.Mbp.MaxDepth < 0 {
		return fmt.Errorf("mbp.max_depth must not be negative")
	}

	if cfg.Visualize.MaxTimeSeriesPoints <= 0 {
		return fmt.Errorf("visualize.max_time_series_points must be greater than 0")
	}
	if cfg.Visualize.MaxHeatmapSnapshots <= 0 {
		return fmt.Errorf("visualize.max_heatmap_snapshots must be greater than 0")
	}
	if cfg.Visualize.Width <= 0 || cfg.Visualize.Height <= 0 {
		return fmt.Errorf("visualize.width and visualize.height must be greater than 0")
	}

	if cfg.Latency.BinWidthNs <= 0 {
		return fmt.Errorf("latency.bin_width_ns must be greater than 0")
	}
	if cfg.Latency.Width <= 0 || cfg.Latency.Height <= 0 {
		return fmt.Errorf("latency.width and latency.height must be greater than 0")
	}

	switch strings.ToLower(cfg.Writer.Compression) {
	case "", "none", "uncompressed", "snappy", "gzip", "lzo", "zstd":
	default:
		return fmt.Errorf("writer.compression '%s' is not supported", cfg.Writer.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
		if cfg.Storage.S3.RequestsPerSecond <= 0 {
			return fmt.Errorf("storage.s3.requests_per_second must be greater than 0")
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Region == "" {
			return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
		}
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
		}
	}

	if cfg.Logging.ReportInterval <= 0 {
		return fmt.Errorf("logging.report_interval must be greater than 0")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
