// Package postgres provides a PostgreSQL-backed store using bun and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the postgres driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/xraph/imprint/store/sqlstore"
)

// Open connects to PostgreSQL at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("imprint/postgres: open: %w", err)
	}
	sqldb.SetConnMaxIdleTime(5 * time.Minute)

	s := New(sqldb)
	if err := s.Ping(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("imprint/postgres: ping: %w", err)
	}
	return s, nil
}

// New wraps an open PostgreSQL handle.
func New(sqldb *sql.DB) *sqlstore.Store {
	return sqlstore.New(bun.NewDB(sqldb, pgdialect.New()))
}
