// Package config provides unified configuration for the Fortunate search tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Oracle types.
const (
	OracleInProcess = "inprocess"
	OracleGP        = "gp"
)

// Config holds the unified configuration for the CLI and the serve mode.
type Config struct {
	// DataDir is the base directory for the ledger and local report storage
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Search   SearchConfig   `json:"search" yaml:"search"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Oracle   OracleConfig   `json:"oracle" yaml:"oracle"`
	Progress ProgressConfig `json:"progress" yaml:"progress"`
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Sweep    SweepConfig    `json:"sweep" yaml:"sweep"`
}

// SearchConfig holds the coordinator and batch sizer parameters.
type SearchConfig struct {
	// Workers is the number of concurrent batch testers (default: NumCPU)
	Workers int `json:"workers" yaml:"workers"`

	// BasePeriod is divided by Workers to get the per-batch target duration
	BasePeriod time.Duration `json:"base_period" yaml:"base_period"`

	// Tolerance is the grow/shrink factor of the batch sizer (must be > 1)
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	// InitialBatchSize is the first batch length
	InitialBatchSize uint64 `json:"initial_batch_size" yaml:"initial_batch_size"`

	// MinBatchSize is the floor the sizer never shrinks below
	MinBatchSize uint64 `json:"min_batch_size" yaml:"min_batch_size"`

	// MaxBatchSize caps growth; zero means unbounded
	MaxBatchSize uint64 `json:"max_batch_size" yaml:"max_batch_size"`

	// Rounds is the Miller-Rabin round count handed to the oracle
	Rounds int `json:"rounds" yaml:"rounds"`

	// CancelCheckInterval is how many offsets a tester walks between cancellation checks
	CancelCheckInterval int `json:"cancel_check_interval" yaml:"cancel_check_interval"`

	// MaxRetries bounds re-dispatches of a range whose worker was lost
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Prefilter enables skipping offsets that share a factor with the primorial
	Prefilter bool `json:"prefilter" yaml:"prefilter"`
}

// ProviderConfig bounds the prime table.
type ProviderConfig struct {
	// MaxIndex is the largest n the provider accepts
	MaxIndex int `json:"max_index" yaml:"max_index"`
}

// OracleConfig selects the primality oracle.
type OracleConfig struct {
	// Type is the oracle type: inprocess, gp
	Type string `json:"type" yaml:"type"`

	// GPPath is the PARI/GP executable (for gp type)
	GPPath string `json:"gp_path" yaml:"gp_path"`
}

// ProgressConfig controls the terminal progress reporter.
type ProgressConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Delay suppresses progress output for searches that finish quickly
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Verbose prints one line per completed batch
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// LedgerConfig holds the results ledger configuration.
type LedgerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path; resolved under DataDir when empty
	Path string `json:"path" yaml:"path"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StorageConfig holds report storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// SweepConfig holds the range sweep configuration.
type SweepConfig struct {
	// ReportPrefix is the object key prefix for uploaded sweep reports
	ReportPrefix string `json:"report_prefix" yaml:"report_prefix"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/fortunate",
		Search: SearchConfig{
			Workers:             runtime.NumCPU(),
			BasePeriod:          60 * time.Second,
			Tolerance:           2.0,
			InitialBatchSize:    1,
			MinBatchSize:        16,
			MaxBatchSize:        0,
			Rounds:              25,
			CancelCheckInterval: 1,
			MaxRetries:          3,
			Prefilter:           true,
		},
		Provider: ProviderConfig{
			MaxIndex: 100000,
		},
		Oracle: OracleConfig{
			Type:   OracleInProcess,
			GPPath: "gp",
		},
		Progress: ProgressConfig{
			Enabled: true,
			Delay:   2 * time.Second,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Sweep: SweepConfig{
			ReportPrefix: "reports/",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/fortunate"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(c.DataDir, "ledger.db")
	}
	if c.Search.Workers <= 0 {
		c.Search.Workers = runtime.NumCPU()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Search.Workers < 1 {
		return fmt.Errorf("search.workers must be at least 1, got %d", c.Search.Workers)
	}
	if c.Search.BasePeriod <= 0 {
		return fmt.Errorf("search.base_period must be positive, got %s", c.Search.BasePeriod)
	}
	if c.Search.Tolerance <= 1 {
		return fmt.Errorf("search.tolerance must be greater than 1, got %g", c.Search.Tolerance)
	}
	if c.Search.InitialBatchSize < 1 {
		return fmt.Errorf("search.initial_batch_size must be at least 1")
	}
	if c.Search.MinBatchSize < 1 {
		return fmt.Errorf("search.min_batch_size must be at least 1")
	}
	if c.Search.MaxBatchSize != 0 && c.Search.MaxBatchSize < c.Search.MinBatchSize {
		return fmt.Errorf("search.max_batch_size (%d) is below search.min_batch_size (%d)",
			c.Search.MaxBatchSize, c.Search.MinBatchSize)
	}
	if c.Search.Rounds < 1 {
		return fmt.Errorf("search.rounds must be at least 1, got %d", c.Search.Rounds)
	}
	if c.Search.CancelCheckInterval < 1 {
		return fmt.Errorf("search.cancel_check_interval must be at least 1, got %d", c.Search.CancelCheckInterval)
	}
	if c.Search.MaxRetries < 0 {
		return fmt.Errorf("search.max_retries must not be negative, got %d", c.Search.MaxRetries)
	}

	if c.Provider.MaxIndex < 1 {
		return fmt.Errorf("provider.max_index must be at least 1, got %d", c.Provider.MaxIndex)
	}

	switch c.Oracle.Type {
	case OracleInProcess:
	case OracleGP:
		if c.Oracle.GPPath == "" {
			return fmt.Errorf("oracle.gp_path is required when oracle type is gp")
		}
	default:
		return fmt.Errorf("invalid oracle type: %s (must be inprocess or gp)", c.Oracle.Type)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the FORTUNATE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FORTUNATE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Search configuration
	if v := os.Getenv("FORTUNATE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Search.Workers)
	}
	if v := os.Getenv("FORTUNATE_BASE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.BasePeriod = d
		}
	}
	if v := os.Getenv("FORTUNATE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Tolerance = f
		}
	}
	if v := os.Getenv("FORTUNATE_MIN_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Search.MinBatchSize)
	}
	if v := os.Getenv("FORTUNATE_MAX_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Search.MaxBatchSize)
	}
	if v := os.Getenv("FORTUNATE_ROUNDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Search.Rounds)
	}
	if v := os.Getenv("FORTUNATE_PREFILTER"); v != "" {
		cfg.Search.Prefilter = v == "true" || v == "1"
	}

	// Oracle configuration
	if v := os.Getenv("FORTUNATE_ORACLE"); v != "" {
		cfg.Oracle.Type = v
	}
	if v := os.Getenv("FORTUNATE_GP_PATH"); v != "" {
		cfg.Oracle.GPPath = v
	}

	// Ledger configuration
	if v := os.Getenv("FORTUNATE_LEDGER_ENABLED"); v != "" {
		cfg.Ledger.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("FORTUNATE_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}

	// Server configuration
	if v := os.Getenv("FORTUNATE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FORTUNATE_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("FORTUNATE_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("FORTUNATE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("FORTUNATE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FORTUNATE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("FORTUNATE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("FORTUNATE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Ledger.Enabled && c.Ledger.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Ledger.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
