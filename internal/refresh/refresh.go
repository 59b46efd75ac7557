// Package refresh orchestrates one extract-analyze-store cycle and, when
// enabled, schedules it with cron.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/querypulse/querypulse/internal/analysis"
	"github.com/querypulse/querypulse/internal/config"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/internal/store"
	"github.com/querypulse/querypulse/internal/warehouse"
	"github.com/querypulse/querypulse/pkg/types"
)

// Service runs refresh cycles. At most one cycle runs at a time; a
// scheduled tick that fires while a cycle is in flight is skipped, not
// queued.
type Service struct {
	cfg       *config.Config
	extractor warehouse.Extractor
	store     store.Store
	engine    *analysis.Engine
	logger    *zap.Logger

	mu      sync.Mutex
	running bool

	cron *cron.Cron
}

func New(cfg *config.Config, extractor warehouse.Extractor, st store.Store, engine *analysis.Engine, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		extractor: extractor,
		store:     st,
		engine:    engine,
		logger:    logger,
	}
}

// RunOnce executes one full cycle: pull history and metadata from the
// warehouse, persist them, analyze, and persist the summaries. Returns the
// run report; per-table problems are diagnostics in the report, not errors.
func (s *Service) RunOnce(ctx context.Context) (*types.RunReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, qperrors.New(qperrors.ErrCategoryAnalysis, qperrors.CodeAnalysisFailed,
			"refresh already in progress")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now().UTC()
	window := types.Window{
		Start: started.AddDate(0, 0, -s.cfg.Analysis.WindowDays),
		End:   started,
	}
	s.logger.Info("refresh started",
		zap.String("platform", s.cfg.Warehouse.Platform),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End))

	rows, err := s.extractor.QueryHistory(ctx, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	tables, err := s.extractor.Tables(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveHistory(ctx, rows); err != nil {
		return nil, err
	}
	if err := s.store.SaveTables(ctx, tables); err != nil {
		return nil, err
	}

	report, err := s.analyzeAndStore(ctx, rows, tables, window)
	if err != nil {
		return report, err
	}

	s.logger.Info("refresh finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("rows", len(rows)),
		zap.Int("tables", report.Tables))
	return report, nil
}

// Reanalyze re-runs analysis over already stored history without touching
// the warehouse.
func (s *Service) Reanalyze(ctx context.Context) (*types.RunReport, error) {
	now := time.Now().UTC()
	window := types.Window{
		Start: now.AddDate(0, 0, -s.cfg.Analysis.WindowDays),
		End:   now,
	}

	rows, err := s.store.LoadHistory(ctx, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	tables, err := s.store.LoadTables(ctx)
	if err != nil {
		return nil, err
	}
	return s.analyzeAndStore(ctx, rows, tables, window)
}

func (s *Service) analyzeAndStore(ctx context.Context, rows []types.RawRow, tables []types.TableMetadata, window types.Window) (*types.RunReport, error) {
	catalog := types.NewColumnCatalog(tables)
	summaries, report, err := s.engine.Analyze(ctx, rows, catalog, window)
	if err != nil {
		return report, err
	}
	if err := s.store.SaveSummaries(ctx, summaries, time.Now().UTC()); err != nil {
		return report, err
	}
	return report, nil
}

// Start registers the cron schedule and begins firing cycles in the
// background. The context bounds each cycle, not the scheduler itself; use
// Stop for shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Refresh.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			if qperrors.GetCode(err) == qperrors.CodeAnalysisFailed {
				s.logger.Warn("scheduled refresh skipped", zap.Error(err))
				return
			}
			s.logger.Error("scheduled refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return qperrors.NewInternalError("invalid refresh schedule", err)
	}
	s.cron.Start()
	s.logger.Info("refresh scheduler started", zap.String("schedule", s.cfg.Refresh.Schedule))
	return nil
}

// Stop halts the scheduler and waits for an in-flight cycle to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped")
}
