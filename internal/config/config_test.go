package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/querypulse/querypulse/pkg/types"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Warehouse.BigQuery.ProjectID = "test-project"
	cfg.Resolve()
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestServeModeNeedsNoCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeServe
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Errorf("serve mode should not require warehouse credentials: %v", err)
	}

	cfg.Mode = ModeRefresh
	if err := cfg.Validate(); err == nil {
		t.Error("refresh mode without project_id should fail validation")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad platform", func(c *Config) { c.Warehouse.Platform = "redshift" }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "postgres" }},
		{"bad granularity", func(c *Config) { c.Analysis.Granularity = "quarter" }},
		{"zero hit count", func(c *Config) { c.Analysis.MinHitCount = 0 }},
		{"too many shards", func(c *Config) { c.Analysis.Shards = 65 }},
		{"zero window", func(c *Config) { c.Analysis.WindowDays = 0 }},
		{"enabled without schedule", func(c *Config) {
			c.Refresh.Enabled = true
			c.Refresh.Schedule = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolveStoragePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/qp"
	cfg.Resolve()
	if cfg.Storage.Path != filepath.Join("/var/lib/qp", "querypulse.duckdb") {
		t.Errorf("duckdb path = %s", cfg.Storage.Path)
	}

	cfg = DefaultConfig()
	cfg.DataDir = "/var/lib/qp"
	cfg.Storage.Type = "sqlite"
	cfg.Resolve()
	if cfg.Storage.Path != filepath.Join("/var/lib/qp", "querypulse.db") {
		t.Errorf("sqlite path = %s", cfg.Storage.Path)
	}

	// An explicit path wins over DataDir resolution.
	cfg = DefaultConfig()
	cfg.Storage.Path = "/tmp/custom.duckdb"
	cfg.Resolve()
	if cfg.Storage.Path != "/tmp/custom.duckdb" {
		t.Errorf("explicit path overwritten: %s", cfg.Storage.Path)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUERYPULSE_MODE", "serve")
	t.Setenv("QUERYPULSE_HTTP_ADDR", ":9999")
	t.Setenv("QUERYPULSE_WAREHOUSE_PLATFORM", "snowflake")
	t.Setenv("QUERYPULSE_SNOWFLAKE_ACCOUNT", "acme-eu")
	t.Setenv("QUERYPULSE_ANALYSIS_GRANULARITY", "day")
	t.Setenv("QUERYPULSE_ANALYSIS_MIN_HIT_COUNT", "5")
	t.Setenv("QUERYPULSE_ANONYMIZE_ENABLED", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Mode != ModeServe {
		t.Errorf("Mode = %s", cfg.Mode)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("Addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Warehouse.Platform != "snowflake" || cfg.Warehouse.Snowflake.Account != "acme-eu" {
		t.Errorf("warehouse = %+v", cfg.Warehouse)
	}
	if cfg.Analysis.Granularity != types.GranularityDay {
		t.Errorf("Granularity = %s", cfg.Analysis.Granularity)
	}
	if cfg.Analysis.MinHitCount != 5 {
		t.Errorf("MinHitCount = %d", cfg.Analysis.MinHitCount)
	}
	if !cfg.Anonymize.Enabled {
		t.Error("Anonymize.Enabled = false")
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
mode: serve
data_dir: /var/lib/qp
storage:
  type: sqlite
analysis:
  granularity: month
  min_hit_count: 3
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeServe || cfg.DataDir != "/var/lib/qp" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("Storage.Type = %s", cfg.Storage.Type)
	}
	if cfg.Analysis.Granularity != types.GranularityMonth || cfg.Analysis.MinHitCount != 3 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	// Unset fields keep their defaults.
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Addr = %s", cfg.HTTP.Addr)
	}
}

func TestLoadFromFileUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = 'serve'"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestShouldServeAndSchedule(t *testing.T) {
	cfg := validConfig()

	cfg.Mode = ModeAll
	if !cfg.ShouldServe() || !cfg.ShouldSchedule() {
		t.Error("all mode should serve and schedule")
	}

	cfg.Mode = ModeServe
	if !cfg.ShouldServe() || cfg.ShouldSchedule() {
		t.Error("serve mode should serve without scheduling")
	}

	cfg.Mode = ModeRefresh
	if cfg.ShouldServe() || cfg.ShouldSchedule() {
		t.Error("refresh mode should neither serve nor schedule")
	}

	cfg.Mode = ModeAll
	cfg.Refresh.Enabled = false
	if cfg.ShouldSchedule() {
		t.Error("disabled refresh should not schedule")
	}
}
