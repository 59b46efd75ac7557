// Package config provides unified configuration for all QueryPulse services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/querypulse/querypulse/pkg/types"
)

// Mode represents the service mode to run.
type Mode string

const (
	// ModeAll runs the HTTP API together with the refresh scheduler.
	ModeAll Mode = "all"
	// ModeServe runs only the HTTP API over previously stored summaries.
	ModeServe Mode = "serve"
	// ModeRefresh runs one extract-analyze-store cycle and exits.
	ModeRefresh Mode = "refresh"
	// ModeAnalyze re-analyzes already stored history without extraction.
	ModeAnalyze Mode = "analyze"
)

// Config holds the unified configuration for all QueryPulse services.
type Config struct {
	// Mode specifies which services to run: all, serve, refresh, analyze
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Warehouse connection configuration
	Warehouse WarehouseConfig `json:"warehouse" yaml:"warehouse"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Analysis engine configuration
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Refresh scheduler configuration
	Refresh RefreshConfig `json:"refresh" yaml:"refresh"`

	// Anonymize controls identifier anonymization on API responses
	Anonymize AnonymizeConfig `json:"anonymize" yaml:"anonymize"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// WarehouseConfig holds warehouse connection configuration.
type WarehouseConfig struct {
	// Platform is the warehouse kind: bigquery, snowflake
	Platform string `json:"platform" yaml:"platform"`

	// Project is the platform project or account label used in reports
	Project string `json:"project" yaml:"project"`

	// Region is the platform region label used in reports
	Region string `json:"region" yaml:"region"`

	BigQuery  BigQueryConfig  `json:"bigquery" yaml:"bigquery"`
	Snowflake SnowflakeConfig `json:"snowflake" yaml:"snowflake"`
}

// BigQueryConfig holds BigQuery client configuration.
type BigQueryConfig struct {
	// ProjectID is the GCP project scanned for query history
	ProjectID string `json:"project_id" yaml:"project_id"`

	// CredentialsFile is the path to a service-account key file; ambient
	// credentials are used when empty
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`

	// Location is the BigQuery location for INFORMATION_SCHEMA queries
	Location string `json:"location" yaml:"location"`
}

// SnowflakeConfig holds Snowflake client configuration.
type SnowflakeConfig struct {
	Account   string `json:"account" yaml:"account"`
	User      string `json:"user" yaml:"user"`
	Password  string `json:"password" yaml:"password"`
	Warehouse string `json:"warehouse" yaml:"warehouse"`
	Role      string `json:"role" yaml:"role"`
	Database  string `json:"database" yaml:"database"`

	// RatePerSecond throttles ACCOUNT_USAGE queries; 0 disables throttling
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
}

// StorageConfig holds summary store configuration.
type StorageConfig struct {
	// Type is the store backend: duckdb, sqlite
	Type string `json:"type" yaml:"type"`

	// Path is the database file path; resolved under DataDir when empty
	Path string `json:"path" yaml:"path"`
}

// AnalysisConfig holds pattern-extraction engine configuration.
type AnalysisConfig struct {
	// Granularity buckets access counts: day, week, month
	Granularity types.Granularity `json:"granularity" yaml:"granularity"`

	// MinHitCount is the minimum predicate hits for a candidate column
	MinHitCount int64 `json:"min_hit_count" yaml:"min_hit_count"`

	// Shards is the number of parallel aggregation workers
	Shards int `json:"shards" yaml:"shards"`

	// WindowDays is the history lookback for one analysis run
	WindowDays int `json:"window_days" yaml:"window_days"`
}

// RefreshConfig holds the refresh scheduler configuration.
type RefreshConfig struct {
	// Enabled controls whether scheduled refresh runs
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Schedule is a cron expression for refresh runs
	Schedule string `json:"schedule" yaml:"schedule"`
}

// AnonymizeConfig controls identifier anonymization.
type AnonymizeConfig struct {
	// Enabled replaces table and column names in API responses with
	// reversible tokens
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is the output encoding: json, console
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/querypulse",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Platform: "bigquery",
			Snowflake: SnowflakeConfig{
				RatePerSecond: 2,
			},
		},
		Storage: StorageConfig{
			Type: "duckdb",
			Path: "",
		},
		Analysis: AnalysisConfig{
			Granularity: types.GranularityWeek,
			MinHitCount: 2,
			Shards:      4,
			WindowDays:  30,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
		},
		Anonymize: AnonymizeConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/querypulse"
	}

	if c.Storage.Path == "" {
		name := "querypulse.duckdb"
		if c.Storage.Type == "sqlite" {
			name = "querypulse.db"
		}
		c.Storage.Path = filepath.Join(c.DataDir, name)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeServe, ModeRefresh, ModeAnalyze:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, serve, refresh, or analyze)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Warehouse.Platform {
	case "bigquery", "snowflake":
	default:
		return fmt.Errorf("invalid warehouse platform: %s (must be bigquery or snowflake)", c.Warehouse.Platform)
	}

	if c.Warehouse.Platform == "bigquery" && c.Warehouse.BigQuery.ProjectID == "" && c.Mode != ModeServe && c.Mode != ModeAnalyze {
		return fmt.Errorf("bigquery.project_id is required when platform is bigquery")
	}
	if c.Warehouse.Platform == "snowflake" && c.Warehouse.Snowflake.Account == "" && c.Mode != ModeServe && c.Mode != ModeAnalyze {
		return fmt.Errorf("snowflake.account is required when platform is snowflake")
	}

	if c.Storage.Type != "duckdb" && c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (must be duckdb or sqlite)", c.Storage.Type)
	}

	if !c.Analysis.Granularity.Valid() {
		return fmt.Errorf("invalid analysis granularity: %s (must be day, week, or month)", c.Analysis.Granularity)
	}
	if c.Analysis.MinHitCount < 1 {
		return fmt.Errorf("analysis.min_hit_count must be at least 1, got %d", c.Analysis.MinHitCount)
	}
	if c.Analysis.Shards < 1 || c.Analysis.Shards > 64 {
		return fmt.Errorf("analysis.shards must be between 1 and 64, got %d", c.Analysis.Shards)
	}
	if c.Analysis.WindowDays < 1 {
		return fmt.Errorf("analysis.window_days must be at least 1, got %d", c.Analysis.WindowDays)
	}

	if c.Refresh.Enabled && c.Refresh.Schedule == "" {
		return fmt.Errorf("refresh.schedule is required when refresh is enabled")
	}

	return nil
}

// ShouldServe returns true if the HTTP API should run.
func (c *Config) ShouldServe() bool {
	return c.Mode == ModeAll || c.Mode == ModeServe
}

// ShouldSchedule returns true if the refresh scheduler should run.
func (c *Config) ShouldSchedule() bool {
	return c.Mode == ModeAll && c.Refresh.Enabled
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
// Environment variables use the QUERYPULSE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("QUERYPULSE_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("QUERYPULSE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("QUERYPULSE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Warehouse configuration
	if v := os.Getenv("QUERYPULSE_WAREHOUSE_PLATFORM"); v != "" {
		cfg.Warehouse.Platform = v
	}
	if v := os.Getenv("QUERYPULSE_WAREHOUSE_PROJECT"); v != "" {
		cfg.Warehouse.Project = v
	}
	if v := os.Getenv("QUERYPULSE_WAREHOUSE_REGION"); v != "" {
		cfg.Warehouse.Region = v
	}
	if v := os.Getenv("QUERYPULSE_BIGQUERY_PROJECT_ID"); v != "" {
		cfg.Warehouse.BigQuery.ProjectID = v
	}
	if v := os.Getenv("QUERYPULSE_BIGQUERY_CREDENTIALS_FILE"); v != "" {
		cfg.Warehouse.BigQuery.CredentialsFile = v
	}
	if v := os.Getenv("QUERYPULSE_BIGQUERY_LOCATION"); v != "" {
		cfg.Warehouse.BigQuery.Location = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Warehouse.Snowflake.Account = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_USER"); v != "" {
		cfg.Warehouse.Snowflake.User = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Snowflake.Password = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_WAREHOUSE"); v != "" {
		cfg.Warehouse.Snowflake.Warehouse = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_ROLE"); v != "" {
		cfg.Warehouse.Snowflake.Role = v
	}
	if v := os.Getenv("QUERYPULSE_SNOWFLAKE_DATABASE"); v != "" {
		cfg.Warehouse.Snowflake.Database = v
	}

	// Storage configuration
	if v := os.Getenv("QUERYPULSE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("QUERYPULSE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	// Analysis configuration
	if v := os.Getenv("QUERYPULSE_ANALYSIS_GRANULARITY"); v != "" {
		cfg.Analysis.Granularity = types.Granularity(v)
	}
	if v := os.Getenv("QUERYPULSE_ANALYSIS_MIN_HIT_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.MinHitCount)
	}
	if v := os.Getenv("QUERYPULSE_ANALYSIS_SHARDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.Shards)
	}
	if v := os.Getenv("QUERYPULSE_ANALYSIS_WINDOW_DAYS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.WindowDays)
	}

	// Refresh configuration
	if v := os.Getenv("QUERYPULSE_REFRESH_ENABLED"); v != "" {
		cfg.Refresh.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("QUERYPULSE_REFRESH_SCHEDULE"); v != "" {
		cfg.Refresh.Schedule = v
	}

	// Anonymization
	if v := os.Getenv("QUERYPULSE_ANONYMIZE_ENABLED"); v != "" {
		cfg.Anonymize.Enabled = v == "true" || v == "1"
	}

	// Logging configuration
	if v := os.Getenv("QUERYPULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUERYPULSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Storage.Path),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
