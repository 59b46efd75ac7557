package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// SQLStore implements Store over any database/sql backend that understands
// the shared schema.
type SQLStore struct {
	db *sql.DB
}

func newSQLStore(db *sql.DB) (*SQLStore, error) {
	for _, stmt := range schemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, qperrors.NewStorageError(qperrors.CodeWriteFailed,
				"schema init failed", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// SaveHistory upserts rows keyed by query_id. Rows without a warehouse
// query identifier get a generated one so retried refreshes cannot collide
// on the primary key.
func (s *SQLStore) SaveHistory(ctx context.Context, rows []types.RawRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "begin failed", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO queries
		(query_id, query_text, start_time, end_time, user_name, statement_type, bytes_scanned, tables)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "prepare failed", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		ts, err := row.StartTime()
		if err != nil {
			continue
		}
		id := row.QueryID()
		if id == "" {
			id = uuid.NewString()
		}
		var endUnix any
		if et, ok := row["end_time"].(time.Time); ok {
			endUnix = et.UTC().Unix()
		}
		tablesJSON, err := json.Marshal(row.Tables())
		if err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "encode tables failed", err)
		}
		userName, _ := row["user_name"].(string)
		stmtType, _ := row["statement_type"].(string)

		if _, err := stmt.ExecContext(ctx, id, row.QueryText(), ts.Unix(), endUnix,
			userName, stmtType, row.BytesScanned(), string(tablesJSON)); err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "insert query failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "commit failed", err)
	}
	return nil
}

func (s *SQLStore) LoadHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT query_id, query_text, start_time, end_time, user_name, statement_type, bytes_scanned, tables
		FROM queries
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time, query_id`,
		start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "history query failed", err)
	}
	defer rs.Close()

	var rows []types.RawRow
	for rs.Next() {
		var (
			id, text           sql.NullString
			startUnix, endUnix sql.NullInt64
			userName, stmtType sql.NullString
			bytesScanned       sql.NullInt64
			tablesJSON         sql.NullString
		)
		if err := rs.Scan(&id, &text, &startUnix, &endUnix, &userName, &stmtType,
			&bytesScanned, &tablesJSON); err != nil {
			return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "history scan failed", err)
		}

		row := types.RawRow{
			"query_id":   id.String,
			"query_text": text.String,
			"start_time": time.Unix(startUnix.Int64, 0).UTC(),
		}
		if endUnix.Valid {
			row["end_time"] = time.Unix(endUnix.Int64, 0).UTC()
		}
		if userName.Valid {
			row["user_name"] = userName.String
		}
		if stmtType.Valid {
			row["statement_type"] = stmtType.String
		}
		if bytesScanned.Valid {
			row["bytes_scanned"] = bytesScanned.Int64
		}
		if tablesJSON.Valid && tablesJSON.String != "" && tablesJSON.String != "null" {
			var tables []string
			if err := json.Unmarshal([]byte(tablesJSON.String), &tables); err == nil && len(tables) > 0 {
				row["tables"] = tables
			}
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "history iteration failed", err)
	}
	return rows, nil
}

// SaveTables replaces the metadata snapshot wholesale. Partial snapshots
// would make schema validation silently drop hits for tables that still
// exist, so the swap happens in one transaction.
func (s *SQLStore) SaveTables(ctx context.Context, tables []types.TableMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "begin failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tables`); err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "clear tables failed", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tables
		(table_key, db_name, schema_name, table_name, columns, row_count, size_bytes, platform, project, region, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "prepare failed", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, t := range tables {
		columnsJSON, err := json.Marshal(t.Columns)
		if err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "encode columns failed", err)
		}
		if _, err := stmt.ExecContext(ctx, t.Ref.Key(), t.Ref.Database, t.Ref.Schema,
			t.Ref.Table, string(columnsJSON), t.RowCount, t.SizeBytes,
			t.Platform, t.Project, t.Region, now); err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "insert table failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "commit failed", err)
	}
	return nil
}

func (s *SQLStore) LoadTables(ctx context.Context) ([]types.TableMetadata, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT db_name, schema_name, table_name, columns, row_count, size_bytes, platform, project, region
		FROM tables
		ORDER BY table_key`)
	if err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "tables query failed", err)
	}
	defer rs.Close()

	var out []types.TableMetadata
	for rs.Next() {
		var (
			dbName, schemaName, tableName sql.NullString
			columnsJSON                   string
			rowCount, sizeBytes           sql.NullInt64
			platform, project, region     sql.NullString
		)
		if err := rs.Scan(&dbName, &schemaName, &tableName, &columnsJSON,
			&rowCount, &sizeBytes, &platform, &project, &region); err != nil {
			return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "tables scan failed", err)
		}

		meta := types.TableMetadata{
			Ref: types.TableRef{
				Database: dbName.String,
				Schema:   schemaName.String,
				Table:    tableName.String,
			},
			RowCount:  rowCount.Int64,
			SizeBytes: sizeBytes.Int64,
			Platform:  platform.String,
			Project:   project.String,
			Region:    region.String,
		}
		if err := json.Unmarshal([]byte(columnsJSON), &meta.Columns); err != nil {
			return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "decode columns failed", err)
		}
		out = append(out, meta)
	}
	if err := rs.Err(); err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "tables iteration failed", err)
	}
	return out, nil
}

func (s *SQLStore) SaveSummaries(ctx context.Context, summaries []types.PatternSummary, generatedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "begin failed", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO pattern_summaries (table_key, payload, generated_at)
		VALUES (?, ?, ?)`)
	if err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "prepare failed", err)
	}
	defer stmt.Close()

	for _, summary := range summaries {
		payload, err := json.Marshal(summary)
		if err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "encode summary failed", err)
		}
		if _, err := stmt.ExecContext(ctx, summary.Ref.Key(), string(payload),
			generatedAt.UTC().Unix()); err != nil {
			return qperrors.NewStorageError(qperrors.CodeWriteFailed, "insert summary failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return qperrors.NewStorageError(qperrors.CodeWriteFailed, "commit failed", err)
	}
	return nil
}

func (s *SQLStore) Summaries(ctx context.Context) ([]types.PatternSummary, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT payload FROM pattern_summaries ORDER BY table_key`)
	if err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "summaries query failed", err)
	}
	defer rs.Close()

	var out []types.PatternSummary
	for rs.Next() {
		var payload string
		if err := rs.Scan(&payload); err != nil {
			return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "summaries scan failed", err)
		}
		var summary types.PatternSummary
		if err := json.Unmarshal([]byte(payload), &summary); err != nil {
			return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "decode summary failed", err)
		}
		out = append(out, summary)
	}
	if err := rs.Err(); err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeReadFailed, "summaries iteration failed", err)
	}
	return out, nil
}

func (s *SQLStore) Summary(ctx context.Context, ref types.TableRef) (types.PatternSummary, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM pattern_summaries WHERE table_key = ?`, ref.Key()).Scan(&payload)
	if err == sql.ErrNoRows {
		return types.PatternSummary{}, qperrors.NewIncompleteDataError(ref.String())
	}
	if err != nil {
		return types.PatternSummary{}, qperrors.NewStorageError(qperrors.CodeReadFailed,
			"summary query failed", err)
	}
	var summary types.PatternSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return types.PatternSummary{}, qperrors.NewStorageError(qperrors.CodeReadFailed,
			"decode summary failed", err)
	}
	return summary, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
