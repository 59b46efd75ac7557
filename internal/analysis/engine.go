package analysis

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/internal/normalize"
	"github.com/querypulse/querypulse/internal/predicate"
	"github.com/querypulse/querypulse/pkg/types"
)

// cancelCheckInterval bounds how many rows a shard processes between
// context checks.
const cancelCheckInterval = 512

// Options configures an Engine. Zero values fall back to defaults: weekly
// granularity, the lexical predicate strategy, a single shard, and a no-op
// logger.
type Options struct {
	Granularity types.Granularity
	MinHitCount int64
	Shards      int
	Strategy    predicate.Strategy
	Logger      *zap.Logger
}

// Engine runs the full pipeline over a batch of raw history rows:
// normalization, per-table aggregation, predicate extraction, ranking, and
// summary assembly. An Engine is stateless across runs and safe for
// concurrent use.
type Engine struct {
	normalizer  *normalize.Normalizer
	strategy    predicate.Strategy
	ranker      *Ranker
	granularity types.Granularity
	shards      int
	logger      *zap.Logger
}

func NewEngine(opts Options) *Engine {
	if !opts.Granularity.Valid() {
		opts.Granularity = types.GranularityWeek
	}
	if opts.Strategy == nil {
		opts.Strategy = predicate.NewLexical()
	}
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		normalizer:  normalize.New(),
		strategy:    opts.Strategy,
		ranker:      NewRanker(opts.MinHitCount),
		granularity: opts.Granularity,
		shards:      opts.Shards,
		logger:      opts.Logger,
	}
}

// Analyze processes rows and returns one summary per observed user table,
// ordered by table key. Malformed rows are skipped and counted in the
// report, never fatal. Cancellation is observed between row batches and at
// table boundaries; a cancelled run returns an ANALYSIS error and whatever
// the report recorded up to that point.
func (e *Engine) Analyze(ctx context.Context, rows []types.RawRow, catalog types.ColumnCatalog, window types.Window) ([]types.PatternSummary, *types.RunReport, error) {
	partial, err := e.aggregate(ctx, rows, catalog)
	if err != nil {
		return nil, &partial.Report, err
	}

	summaries := make([]types.PatternSummary, 0, len(partial.Stats))
	for _, key := range partial.TableKeys() {
		if err := ctx.Err(); err != nil {
			return nil, &partial.Report, qperrors.NewAnalysisError("analysis cancelled", err, nil)
		}
		stats := partial.Stats[key]
		// Stats are only created by observing a record, so a zero total
		// means the fold itself is broken. Fail that table, not the run.
		if stats.TotalQueries < 1 {
			partial.Report.Failures = append(partial.Report.Failures, types.TableFailure{
				Table: stats.Ref.String(),
				Error: qperrors.NewIncompleteDataError(stats.Ref.String()).Error(),
			})
			continue
		}
		summaries = append(summaries, types.PatternSummary{
			Ref:         stats.Ref,
			Stats:       stats,
			Candidates:  e.ranker.Rank(partial.Hits[key]),
			Window:      window,
			Granularity: e.granularity,
		})
	}
	partial.Report.Tables = len(summaries)

	e.logger.Info("analysis complete",
		zap.Int("tables", partial.Report.Tables),
		zap.Int("rows_seen", partial.Report.RowsSeen),
		zap.Int("rows_skipped", partial.Report.SkippedRows),
		zap.Int("hits_dropped", partial.Report.DroppedHits))
	return summaries, &partial.Report, nil
}

// AnalyzeTable runs the same pipeline but keeps only the named table. A run
// in which the table was never observed returns an INCOMPLETE_DATA error.
func (e *Engine) AnalyzeTable(ctx context.Context, rows []types.RawRow, catalog types.ColumnCatalog, window types.Window, ref types.TableRef) (types.PatternSummary, *types.RunReport, error) {
	summaries, report, err := e.Analyze(ctx, rows, catalog, window)
	if err != nil {
		return types.PatternSummary{}, report, err
	}
	for _, s := range summaries {
		if s.Ref.Equal(ref) {
			report.Tables = 1
			return s, report, nil
		}
	}
	return types.PatternSummary{}, report, qperrors.NewIncompleteDataError(ref.String())
}

// aggregate shards the rows across workers and merges their partials. With
// one shard everything runs on the calling goroutine.
func (e *Engine) aggregate(ctx context.Context, rows []types.RawRow, catalog types.ColumnCatalog) (*Partial, error) {
	if e.shards == 1 || len(rows) < e.shards*2 {
		partial := NewPartial()
		if err := e.processRows(ctx, rows, catalog, partial); err != nil {
			return partial, qperrors.NewAnalysisError("analysis cancelled", err, nil)
		}
		return partial, nil
	}

	partials := make([]*Partial, e.shards)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(rows) + e.shards - 1) / e.shards
	for i := 0; i < e.shards; i++ {
		lo := i * chunk
		hi := lo + chunk
		if lo >= len(rows) {
			break
		}
		if hi > len(rows) {
			hi = len(rows)
		}
		i := i
		shard := rows[lo:hi]
		g.Go(func() error {
			p := NewPartial()
			if err := e.processRows(gctx, shard, catalog, p); err != nil {
				return err
			}
			partials[i] = p
			return nil
		})
	}

	merged := NewPartial()
	if err := g.Wait(); err != nil {
		return merged, qperrors.NewAnalysisError("analysis cancelled", err, nil)
	}
	for _, p := range partials {
		merged.Merge(p)
	}
	return merged, nil
}

// processRows folds a slice of raw rows into one partial. Predicate
// extraction runs once per row even when the row fans out into several
// per-table records, so a join never double-counts its predicates.
func (e *Engine) processRows(ctx context.Context, rows []types.RawRow, catalog types.ColumnCatalog, partial *Partial) error {
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		partial.Report.RowsSeen++

		res, err := e.normalizer.Normalize(row)
		if err != nil {
			partial.Report.SkippedRows++
			e.logger.Debug("skipping malformed row", zap.Error(err))
			continue
		}
		if len(res.Records) == 0 {
			continue
		}
		for _, rec := range res.Records {
			partial.ObserveRecord(rec, e.granularity)
		}

		hits := e.strategy.ExtractPredicates(res.Records[0].RawSQL)
		if len(hits) == 0 {
			continue
		}
		resolved, dropped, mismatches := predicate.Resolve(hits, res.Scan, res.Refs, catalog, res.Records[0].Timestamp)
		partial.Report.DroppedHits += dropped
		for _, merr := range mismatches {
			e.logger.Debug("dropping predicate hit", zap.Error(merr))
		}
		for _, hit := range resolved {
			partial.ObserveHit(hit)
		}
	}
	return nil
}
