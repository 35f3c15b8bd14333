package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/store/postgres"
	"github.com/xraph/imprint/store/storetest"
)

var tables = []string{
	"imprint_receipts",
	"imprint_events",
	"imprint_holdings",
	"imprint_editions",
	"imprint_state",
	"imprint_migrations",
}

func TestConformance(t *testing.T) {
	dsn := os.Getenv("IMPRINT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("IMPRINT_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		for _, table := range tables {
			if _, err := s.DB().ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				t.Fatalf("drop %s: %v", table, err)
			}
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
