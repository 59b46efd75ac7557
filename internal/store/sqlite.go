package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	qperrors "github.com/querypulse/querypulse/internal/errors"
)

// openSQLite opens a SQLite-backed store for deployments without the DuckDB
// native library. ":memory:" gives an in-memory database.
func openSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, qperrors.NewStorageError(qperrors.CodeConnectionFailed,
			"sqlite open failed", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(db)
}
