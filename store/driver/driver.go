// Package driver opens a store backend by name. It is the single place that
// links every backend, so callers that pick a backend from configuration
// depend on it instead of on each store package.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/store/memory"
	"github.com/xraph/imprint/store/mongo"
	"github.com/xraph/imprint/store/postgres"
	"github.com/xraph/imprint/store/sqlite"
)

// Backend names.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Mongo    = "mongo"
)

// DefaultMongoDatabase is used when no database name is given.
const DefaultMongoDatabase = "imprint"

// Names returns the supported backend names.
func Names() []string {
	return []string{Memory, SQLite, Postgres, Mongo}
}

// Open connects to the named backend. dsn is ignored for the memory backend;
// database only applies to mongo.
func Open(ctx context.Context, name, dsn, database string) (store.Store, error) {
	switch strings.ToLower(name) {
	case "", Memory:
		return memory.New(), nil
	case SQLite, "sqlite3":
		if dsn == "" {
			return nil, fmt.Errorf("imprint/driver: %s requires a dsn", SQLite)
		}
		return sqlite.Open(dsn)
	case Postgres, "pg", "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("imprint/driver: %s requires a dsn", Postgres)
		}
		return postgres.Open(ctx, dsn)
	case Mongo, "mongodb":
		if dsn == "" {
			return nil, fmt.Errorf("imprint/driver: %s requires a dsn", Mongo)
		}
		if database == "" {
			database = DefaultMongoDatabase
		}
		return mongo.Open(ctx, dsn, database)
	default:
		return nil, fmt.Errorf("imprint/driver: unknown backend %q (want one of %s)",
			name, strings.Join(Names(), ", "))
	}
}
