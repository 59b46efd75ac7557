// Package main implements the unified querypulse binary.
// One binary runs every mode: the API server, the scheduled refresher, a
// one-shot refresh, or a re-analysis of already stored history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/querypulse/querypulse/internal/app"
	"github.com/querypulse/querypulse/internal/config"
	"github.com/querypulse/querypulse/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		httpAddr    string
		platform    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "", "Service mode: all, serve, refresh, analyze")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP address for the API server")
	flag.StringVar(&platform, "platform", "", "Warehouse platform: bigquery, snowflake")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "QueryPulse - Query Pattern Analysis For Data Warehouses\n\n")
		fmt.Fprintf(os.Stderr, "Usage: querypulse [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  querypulse --platform bigquery --data-dir /data/querypulse\n")
		fmt.Fprintf(os.Stderr, "  querypulse --mode refresh --config /etc/querypulse/config.yaml\n")
		fmt.Fprintf(os.Stderr, "  querypulse --mode serve --http-addr :8080\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_MODE                 Service mode (all, serve, refresh, analyze)\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_DATA_DIR             Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_WAREHOUSE_PLATFORM   Warehouse platform (bigquery, snowflake)\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_STORAGE_TYPE         Storage backend (duckdb, sqlite)\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_SNOWFLAKE_*          Snowflake connection settings\n")
		fmt.Fprintf(os.Stderr, "  QUERYPULSE_BIGQUERY_*           BigQuery connection settings\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("querypulse version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Load a local .env before the environment is read; absence is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr, platform)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// One-shot modes finish inside Start; long-running modes wait for a
	// signal.
	switch cfg.Mode {
	case config.ModeRefresh, config.ModeAnalyze:
		if err := application.Stop(context.Background()); err != nil {
			log.Printf("Shutdown error: %v", err)
			os.Exit(1)
		}
	default:
		if err := application.WaitForShutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
			os.Exit(1)
		}
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, httpAddr, platform string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if platform != "" {
		cfg.Warehouse.Platform = platform
	}

	return cfg, nil
}
