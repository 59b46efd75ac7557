// Package warehouse extracts query history and table metadata from the
// supported platforms. Extractors translate each platform's history schema
// into the canonical RawRow keys the normalizer understands; nothing beyond
// this package knows warehouse dialects.
package warehouse

import (
	"context"
	"time"

	"github.com/querypulse/querypulse/internal/config"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// Extractor pulls raw history rows and table metadata from one warehouse.
type Extractor interface {
	// QueryHistory returns the read-query history rows whose start time
	// falls inside [start, end).
	QueryHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error)

	// Tables returns metadata for every user table visible to the
	// connection, including column lists for schema validation.
	Tables(ctx context.Context) ([]types.TableMetadata, error)

	// Close releases the underlying connection.
	Close() error
}

// New builds the extractor for the configured platform.
func New(ctx context.Context, cfg *config.Config) (Extractor, error) {
	switch cfg.Warehouse.Platform {
	case "bigquery":
		return NewBigQuery(ctx, cfg)
	case "snowflake":
		return NewSnowflake(cfg)
	default:
		return nil, qperrors.NewExtractError(qperrors.CodeConnectionFailed,
			"unsupported warehouse platform: "+cfg.Warehouse.Platform, nil)
	}
}
