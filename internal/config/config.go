// Package config loads the YAML configuration of an ingestion run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coffersTech/datalog-influx/internal/pkg/security"
	"github.com/coffersTech/datalog-influx/internal/storage"
)

// Environment variables consulted by Load.
const (
	EnvToken = "DATALOG_INFLUX_TOKEN"
	EnvKey   = "DATALOG_INFLUX_KEY"
)

// Sink kinds.
const (
	SinkInflux = "influx"
	SinkFile   = "file"
)

// Defaults applied to unset fields.
const (
	DefaultMeasurement = "robot"
	DefaultBatchSize   = 1000
	DefaultTimeout     = 10 * time.Second
	DefaultDataDir     = "./data"
)

// Config is the top-level configuration.
type Config struct {
	// Bucket is the target container written into. Required.
	Bucket string `yaml:"bucket"`

	// Measurement is the series name of every point. Defaults to "robot".
	Measurement string `yaml:"measurement"`

	// BatchSize is the number of points per bulk write. Defaults to 1000.
	BatchSize int `yaml:"batch_size"`

	// Sink selects the destination: "influx" (default) or "file".
	Sink string `yaml:"sink"`

	Influx InfluxConfig `yaml:"influx"`
	File   FileConfig   `yaml:"file"`
}

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL string `yaml:"url"`
	Org string `yaml:"org"`

	// Token is the API token, either plain or sealed as "enc:<hex>" with the
	// passphrase in DATALOG_INFLUX_KEY.
	Token              string        `yaml:"token"`
	Timeout            time.Duration `yaml:"timeout"`
	Gzip               bool          `yaml:"gzip"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// FileConfig configures the local file sink.
type FileConfig struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`

	// Retention deletes batch files whose newest point is older than this
	// after each run. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// Load reads the configuration at path, applies defaults and environment
// overrides, opens a sealed token and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if token := os.Getenv(EnvToken); token != "" {
		cfg.Influx.Token = token
	}
	if security.IsSealed(cfg.Influx.Token) {
		token, err := security.OpenToken(os.Getenv(EnvKey), cfg.Influx.Token)
		if err != nil {
			return nil, fmt.Errorf("influx.token: %w", err)
		}
		cfg.Influx.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Measurement == "" {
		c.Measurement = DefaultMeasurement
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Sink == "" {
		c.Sink = SinkInflux
	}
	if c.Influx.Timeout == 0 {
		c.Influx.Timeout = DefaultTimeout
	}
	if c.File.Dir == "" {
		c.File.Dir = DefaultDataDir
	}
	if c.File.Compression == "" {
		c.File.Compression = storage.CompressionZstd.String()
	}
}

// Validate checks that the configuration is usable. It is called by Load and
// again after command-line overrides.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Influx.Timeout < 0 {
		return fmt.Errorf("influx.timeout must not be negative")
	}

	switch c.Sink {
	case SinkInflux:
		if c.Influx.URL == "" {
			return fmt.Errorf("influx.url is required for the influx sink")
		}
	case SinkFile:
		if c.File.Retention < 0 {
			return fmt.Errorf("file.retention must not be negative")
		}
		if _, err := storage.ParseCompression(c.File.Compression); err != nil {
			return fmt.Errorf("file.compression: %w", err)
		}
	default:
		return fmt.Errorf("unknown sink %q (supported: influx, file)", c.Sink)
	}
	return nil
}
