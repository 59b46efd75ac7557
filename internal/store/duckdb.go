package store

import (
	"database/sql"

	_ "github.com/marcboeker/go-duckdb"

	qperrors "github.com/querypulse/querypulse/internal/errors"
)

// openDuckDB opens a DuckDB-backed store. An empty path gives an in-memory
// database, which the tests use.
func openDuckDB(path string) (*SQLStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeConnectionFailed,
			"duckdb open failed", err)
	}
	// DuckDB is an embedded single-writer engine.
	db.SetMaxOpenConns(1)
	return newSQLStore(db)
}
