// Package sqlite provides a SQLite-backed store using bun and mattn/go-sqlite3.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/xraph/imprint/store/sqlstore"
)

// Open opens a SQLite database at dsn and returns a store on it. SQLite
// allows one writer at a time, so the pool is limited to a single
// connection.
func Open(dsn string) (*sqlstore.Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("imprint/sqlite: open: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return New(sqldb), nil
}

// New wraps an open SQLite handle.
func New(sqldb *sql.DB) *sqlstore.Store {
	return sqlstore.New(bun.NewDB(sqldb, sqlitedialect.New()))
}
