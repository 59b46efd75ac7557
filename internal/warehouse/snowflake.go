package warehouse

import (
	"context"
	"database/sql"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"golang.org/x/time/rate"

	"github.com/querypulse/querypulse/internal/config"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// Snowflake extracts history from the ACCOUNT_USAGE share. ACCOUNT_USAGE
// views are rate-limited account-wide, so every query passes through a
// limiter before it reaches the warehouse.
type Snowflake struct {
	db      *sql.DB
	limiter *rate.Limiter
	account string
	region  string
}

func NewSnowflake(cfg *config.Config) (*Snowflake, error) {
	sf := cfg.Warehouse.Snowflake

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   sf.Account,
		User:      sf.User,
		Password:  sf.Password,
		Warehouse: sf.Warehouse,
		Role:      sf.Role,
		Database:  sf.Database,
	})
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeConnectionFailed,
			"snowflake DSN build failed", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeConnectionFailed,
			"snowflake connection failed", err)
	}
	db.SetMaxOpenConns(2)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if sf.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(sf.RatePerSecond), 1)
	}
	return &Snowflake{
		db:      db,
		limiter: limiter,
		account: sf.Account,
		region:  cfg.Warehouse.Region,
	}, nil
}

// QueryHistory pulls completed SELECT statements from
// SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY. ACCOUNT_USAGE carries no
// referenced-table list, so table attribution happens downstream from the
// SQL text.
func (s *Snowflake) QueryHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake history query aborted", err)
	}

	const q = `
		SELECT query_id, query_text, start_time, end_time,
		       user_name, query_type, bytes_scanned
		FROM SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY
		WHERE query_type = 'SELECT'
		  AND execution_status = 'SUCCESS'
		  AND start_time >= ?
		  AND start_time < ?`

	rs, err := s.db.QueryContext(ctx, q, start.UTC(), end.UTC())
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake history query failed", err)
	}
	defer rs.Close()

	var rows []types.RawRow
	for rs.Next() {
		var (
			queryID, queryText      sql.NullString
			startTime, endTime      sql.NullTime
			userName, statementType sql.NullString
			bytesScanned            sql.NullInt64
		)
		if err := rs.Scan(&queryID, &queryText, &startTime, &endTime,
			&userName, &statementType, &bytesScanned); err != nil {
			return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
				"snowflake history scan failed", err)
		}

		row := types.RawRow{
			"query_id":   queryID.String,
			"query_text": queryText.String,
		}
		if startTime.Valid {
			row["start_time"] = startTime.Time
		}
		if endTime.Valid {
			row["end_time"] = endTime.Time
		}
		if userName.Valid {
			row["user_name"] = userName.String
		}
		if statementType.Valid {
			row["statement_type"] = statementType.String
		}
		if bytesScanned.Valid {
			row["bytes_scanned"] = bytesScanned.Int64
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake history iteration failed", err)
	}
	return rows, nil
}

// Tables lists live user tables and their columns from ACCOUNT_USAGE.
func (s *Snowflake) Tables(ctx context.Context) ([]types.TableMetadata, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake metadata query aborted", err)
	}

	const q = `
		SELECT t.table_catalog, t.table_schema, t.table_name,
		       t.row_count, t.bytes, c.column_name, c.data_type
		FROM SNOWFLAKE.ACCOUNT_USAGE.TABLES t
		JOIN SNOWFLAKE.ACCOUNT_USAGE.COLUMNS c
		  ON c.table_id = t.table_id
		WHERE t.deleted IS NULL
		  AND c.deleted IS NULL
		  AND t.table_schema <> 'INFORMATION_SCHEMA'
		ORDER BY t.table_catalog, t.table_schema, t.table_name, c.ordinal_position`

	rs, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake metadata query failed", err)
	}
	defer rs.Close()

	byKey := make(map[string]*types.TableMetadata)
	var order []string
	for rs.Next() {
		var (
			catalog, schema, table sql.NullString
			rowCount, sizeBytes    sql.NullInt64
			columnName, dataType   sql.NullString
		)
		if err := rs.Scan(&catalog, &schema, &table, &rowCount, &sizeBytes,
			&columnName, &dataType); err != nil {
			return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
				"snowflake metadata scan failed", err)
		}

		ref := types.TableRef{Database: catalog.String, Schema: schema.String, Table: table.String}
		if ref.Table == "" || ref.IsSystem() {
			continue
		}
		key := ref.Key()
		meta, ok := byKey[key]
		if !ok {
			meta = &types.TableMetadata{
				Ref:       ref,
				RowCount:  rowCount.Int64,
				SizeBytes: sizeBytes.Int64,
				Platform:  "snowflake",
				Project:   s.account,
				Region:    s.region,
			}
			byKey[key] = meta
			order = append(order, key)
		}
		meta.Columns = append(meta.Columns, types.ColumnMeta{
			Name: columnName.String,
			Type: dataType.String,
		})
	}
	if err := rs.Err(); err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"snowflake metadata iteration failed", err)
	}

	out := make([]types.TableMetadata, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

func (s *Snowflake) Close() error {
	return s.db.Close()
}
