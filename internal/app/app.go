// Package app provides the unified application lifecycle management for QueryPulse.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/querypulse/querypulse/internal/analysis"
	"github.com/querypulse/querypulse/internal/anonymize"
	httpapi "github.com/querypulse/querypulse/internal/api/http"
	"github.com/querypulse/querypulse/internal/config"
	"github.com/querypulse/querypulse/internal/observability"
	"github.com/querypulse/querypulse/internal/recommend"
	"github.com/querypulse/querypulse/internal/refresh"
	"github.com/querypulse/querypulse/internal/server"
	"github.com/querypulse/querypulse/internal/store"
	"github.com/querypulse/querypulse/internal/warehouse"
	"github.com/querypulse/querypulse/pkg/types"
)

// App manages all QueryPulse service lifecycles.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	store      store.Store
	extractor  warehouse.Extractor
	engine     *analysis.Engine
	refresher  *refresh.Service
	anonymizer *anonymize.Anonymizer
	stats      *observability.APIStats
	shutdown   *server.ShutdownManager

	apiServer *http.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		stats:  observability.NewAPIStats(),
	}, nil
}

// Start initializes shared resources and starts the configured services.
// In refresh and analyze modes the process runs one cycle and returns;
// in serve and all modes Start returns once the API is listening.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	switch a.cfg.Mode {
	case config.ModeRefresh:
		report, err := a.refresher.RunOnce(ctx)
		a.logReport(report)
		return err
	case config.ModeAnalyze:
		report, err := a.refresher.Reanalyze(ctx)
		a.logReport(report)
		return err
	}

	if a.cfg.ShouldSchedule() {
		if err := a.refresher.Start(ctx); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start refresh scheduler: %w", err)
		}
		a.shutdown.RegisterCloser(server.CloserFunc(func() error {
			a.refresher.Stop()
			return nil
		}))
	}

	if a.cfg.ShouldServe() {
		if err := a.startAPIServer(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}
	return nil
}

// initSharedResources opens the store and, when the mode needs the
// warehouse, the extractor, then wires the engine and refresh service.
func (a *App) initSharedResources(ctx context.Context) error {
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{}, a.logger)

	st, err := store.New(a.cfg)
	if err != nil {
		return err
	}
	a.store = st
	a.shutdown.RegisterCloser(st)

	if a.cfg.Mode != config.ModeServe && a.cfg.Mode != config.ModeAnalyze {
		extractor, err := warehouse.New(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.extractor = extractor
		a.shutdown.RegisterCloser(extractor)
	}

	a.engine = analysis.NewEngine(analysis.Options{
		Granularity: a.cfg.Analysis.Granularity,
		MinHitCount: a.cfg.Analysis.MinHitCount,
		Shards:      a.cfg.Analysis.Shards,
		Logger:      a.logger.Named("analysis"),
	})
	a.refresher = refresh.New(a.cfg, a.extractor, a.store, a.engine, a.logger.Named("refresh"))

	if a.cfg.Anonymize.Enabled {
		a.anonymizer = anonymize.New()
	}
	return nil
}

// startAPIServer wires the router and begins serving in the background.
func (a *App) startAPIServer() error {
	var refresher *refresh.Service
	if a.extractor != nil {
		refresher = a.refresher
	}

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Store:       a.store,
		Anonymizer:  a.anonymizer,
		Refresher:   refresher,
		Recommender: recommend.NewStatic(),
		Stats:       a.stats,
		Logger:      a.logger.Named("http"),
	})

	a.apiServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      server.ShutdownMiddleware(a.shutdown)(router),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	graceful := server.NewGracefulHTTPServer(a.apiServer, a.shutdown)
	go func() {
		if err := graceful.ListenAndServe(); err != nil {
			a.logger.Error("api server exited", zap.Error(err))
		}
	}()

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	return nil
}

// WaitForShutdown blocks until a signal or context cancellation, then runs
// graceful shutdown.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Stop shuts the app down gracefully.
func (a *App) Stop(ctx context.Context) error {
	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.cleanup()
	return err
}

func (a *App) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
}

func (a *App) logReport(report *types.RunReport) {
	if report == nil {
		return
	}
	a.logger.Info("run report",
		zap.Int("rows_seen", report.RowsSeen),
		zap.Int("rows_skipped", report.SkippedRows),
		zap.Int("hits_dropped", report.DroppedHits),
		zap.Int("tables", report.Tables),
		zap.Int("failures", len(report.Failures)))
}
