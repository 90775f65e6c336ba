package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Search.Tolerance != 2.0 {
		t.Errorf("expected tolerance 2.0, got %g", cfg.Search.Tolerance)
	}
	if cfg.Search.BasePeriod != 60*time.Second {
		t.Errorf("expected base period 60s, got %s", cfg.Search.BasePeriod)
	}
	if cfg.Ledger.Path != filepath.Join(cfg.DataDir, "ledger.db") {
		t.Errorf("ledger path not resolved: %q", cfg.Ledger.Path)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero workers", func(c *Config) { c.Search.Workers = 0 }},
		{"tolerance at one", func(c *Config) { c.Search.Tolerance = 1.0 }},
		{"zero base period", func(c *Config) { c.Search.BasePeriod = 0 }},
		{"zero min batch", func(c *Config) { c.Search.MinBatchSize = 0 }},
		{"max below min", func(c *Config) { c.Search.MaxBatchSize = 4 }},
		{"zero rounds", func(c *Config) { c.Search.Rounds = 0 }},
		{"zero check interval", func(c *Config) { c.Search.CancelCheckInterval = 0 }},
		{"negative retries", func(c *Config) { c.Search.MaxRetries = -1 }},
		{"unknown oracle", func(c *Config) { c.Oracle.Type = "ecpp" }},
		{"gp without path", func(c *Config) { c.Oracle.Type = OracleGP; c.Oracle.GPPath = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fortunate.yaml")
	content := `
data_dir: /tmp/fortunate
search:
  workers: 3
  base_period: 30s
  tolerance: 1.5
  min_batch_size: 8
oracle:
  type: gp
  gp_path: /usr/bin/gp
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Search.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Search.Workers)
	}
	if cfg.Search.BasePeriod != 30*time.Second {
		t.Errorf("expected 30s base period, got %s", cfg.Search.BasePeriod)
	}
	if cfg.Search.Tolerance != 1.5 {
		t.Errorf("expected tolerance 1.5, got %g", cfg.Search.Tolerance)
	}
	if cfg.Oracle.Type != OracleGP || cfg.Oracle.GPPath != "/usr/bin/gp" {
		t.Errorf("unexpected oracle config: %+v", cfg.Oracle)
	}
	// Untouched keys keep their defaults.
	if cfg.Search.Rounds != 25 {
		t.Errorf("expected default rounds 25, got %d", cfg.Search.Rounds)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fortunate.json")
	content := `{"provider": {"max_index": 500}, "sweep": {"report_prefix": "sweeps/"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Provider.MaxIndex != 500 {
		t.Errorf("expected max index 500, got %d", cfg.Provider.MaxIndex)
	}
	if cfg.Sweep.ReportPrefix != "sweeps/" {
		t.Errorf("expected report prefix sweeps/, got %q", cfg.Sweep.ReportPrefix)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fortunate.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FORTUNATE_WORKERS", "7")
	t.Setenv("FORTUNATE_TOLERANCE", "3")
	t.Setenv("FORTUNATE_BASE_PERIOD", "10s")
	t.Setenv("FORTUNATE_PREFILTER", "false")
	t.Setenv("FORTUNATE_ORACLE", "gp")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Search.Workers != 7 {
		t.Errorf("expected 7 workers, got %d", cfg.Search.Workers)
	}
	if cfg.Search.Tolerance != 3 {
		t.Errorf("expected tolerance 3, got %g", cfg.Search.Tolerance)
	}
	if cfg.Search.BasePeriod != 10*time.Second {
		t.Errorf("expected 10s, got %s", cfg.Search.BasePeriod)
	}
	if cfg.Search.Prefilter {
		t.Error("expected prefilter disabled")
	}
	if cfg.Oracle.Type != OracleGP {
		t.Errorf("expected gp oracle, got %q", cfg.Oracle.Type)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(cfg.Storage.Path); err != nil {
		t.Errorf("storage dir not created: %v", err)
	}
}
