// Package store persists extracted history, table metadata, and pattern
// summaries in an embedded analytical database. Both backends speak
// database/sql, so one implementation serves DuckDB and SQLite; only the
// driver and file extension differ.
package store

import (
	"context"
	"time"

	"github.com/querypulse/querypulse/internal/config"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// Store is the persistence boundary for one QueryPulse deployment.
type Store interface {
	// SaveHistory upserts raw history rows keyed by query_id.
	SaveHistory(ctx context.Context, rows []types.RawRow) error

	// LoadHistory returns stored history rows with start_time in
	// [start, end).
	LoadHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error)

	// SaveTables replaces the stored table metadata snapshot.
	SaveTables(ctx context.Context, tables []types.TableMetadata) error

	// LoadTables returns the stored table metadata snapshot.
	LoadTables(ctx context.Context) ([]types.TableMetadata, error)

	// SaveSummaries upserts one summary per table.
	SaveSummaries(ctx context.Context, summaries []types.PatternSummary, generatedAt time.Time) error

	// Summaries returns all stored summaries ordered by table key.
	Summaries(ctx context.Context) ([]types.PatternSummary, error)

	// Summary returns one table's stored summary.
	Summary(ctx context.Context, ref types.TableRef) (types.PatternSummary, error)

	// Close releases the database handle.
	Close() error
}

// Schema statements, shared by both backends.
const createQueriesTableSQL = `
CREATE TABLE IF NOT EXISTS queries (
    query_id TEXT PRIMARY KEY,
    query_text TEXT NOT NULL,
    start_time BIGINT NOT NULL,
    end_time BIGINT,
    user_name TEXT,
    statement_type TEXT,
    bytes_scanned BIGINT,
    tables TEXT
)`

const createTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    table_key TEXT PRIMARY KEY,
    db_name TEXT,
    schema_name TEXT,
    table_name TEXT NOT NULL,
    columns TEXT NOT NULL,
    row_count BIGINT,
    size_bytes BIGINT,
    platform TEXT,
    project TEXT,
    region TEXT,
    refreshed_at BIGINT NOT NULL
)`

const createSummariesTableSQL = `
CREATE TABLE IF NOT EXISTS pattern_summaries (
    table_key TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    generated_at BIGINT NOT NULL
)`

const createQueriesTimeIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_queries_start_time ON queries(start_time)`

func schemaSQL() []string {
	return []string{
		createQueriesTableSQL,
		createTablesTableSQL,
		createSummariesTableSQL,
		createQueriesTimeIndexSQL,
	}
}

// New opens the configured backend and initializes the schema.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Type {
	case "duckdb":
		return openDuckDB(cfg.Storage.Path)
	case "sqlite":
		return openSQLite(cfg.Storage.Path)
	default:
		return nil, qperrors.NewStorageError(qperrors.CodeConnectionFailed,
			"unsupported storage type: "+cfg.Storage.Type, nil)
	}
}
