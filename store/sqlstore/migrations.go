package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Migration is one versioned schema step. Statements may use the
// placeholders {amount} and {ts}, which expand to the dialect's column types
// for unsigned amounts and timestamps.
type Migration struct {
	Name       string
	Version    string
	Statements []string
}

// Migrations is the ordered schema for the imprint tables.
var Migrations = []Migration{
	{
		Name:    "create_imprint_state",
		Version: "20260101000001",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS imprint_state (
    id              INTEGER PRIMARY KEY,
    last_edition_id BIGINT NOT NULL DEFAULT 0,
    last_event_seq  BIGINT NOT NULL DEFAULT 0,
    retained        {amount} NOT NULL DEFAULT '0',
    currency        TEXT NOT NULL DEFAULT ''
)`},
	},
	{
		Name:    "create_imprint_editions",
		Version: "20260101000002",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS imprint_editions (
    id         BIGINT PRIMARY KEY,
    author     TEXT NOT NULL,
    price      {amount} NOT NULL,
    uri        TEXT NOT NULL DEFAULT '',
    custody    {amount} NOT NULL DEFAULT '0',
    minted     {amount} NOT NULL DEFAULT '0',
    created_at {ts} NOT NULL,
    updated_at {ts} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_editions_author ON imprint_editions (author)`,
		},
	},
	{
		Name:    "create_imprint_holdings",
		Version: "20260101000003",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS imprint_holdings (
    holder     TEXT NOT NULL,
    edition_id BIGINT NOT NULL,
    balance    {amount} NOT NULL DEFAULT '0',
    created_at {ts} NOT NULL,
    updated_at {ts} NOT NULL,
    PRIMARY KEY (holder, edition_id)
)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_holdings_edition ON imprint_holdings (edition_id)`,
		},
	},
	{
		Name:    "create_imprint_events",
		Version: "20260101000004",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS imprint_events (
    seq        BIGINT PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    kind       TEXT NOT NULL,
    edition_id BIGINT NOT NULL,
    actor      TEXT NOT NULL DEFAULT '',
    amount     {amount} NOT NULL DEFAULT '0',
    unit_price {amount} NOT NULL DEFAULT '0',
    price      {amount} NOT NULL DEFAULT '0',
    new_total  {amount} NOT NULL DEFAULT '0',
    uri        TEXT NOT NULL DEFAULT '',
    created_at {ts} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_events_edition ON imprint_events (edition_id, seq)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_events_kind ON imprint_events (kind, seq)`,
		},
	},
	{
		Name:    "create_imprint_receipts",
		Version: "20260101000005",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS imprint_receipts (
    id         TEXT PRIMARY KEY,
    edition_id BIGINT NOT NULL,
    buyer      TEXT NOT NULL,
    amount     {amount} NOT NULL,
    unit_price {amount} NOT NULL,
    paid       {amount} NOT NULL,
    currency   TEXT NOT NULL,
    created_at {ts} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_receipts_buyer ON imprint_receipts (buyer, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_imprint_receipts_edition ON imprint_receipts (edition_id)`,
		},
	},
	{
		Name:    "add_imprint_state_custodian",
		Version: "20260101000006",
		Statements: []string{
			`ALTER TABLE imprint_state ADD COLUMN custodian TEXT NOT NULL DEFAULT ''`,
		},
	},
}

type migrationModel struct {
	bun.BaseModel `bun:"table:imprint_migrations,alias:mig"`

	Version   string    `bun:"version,pk"`
	Name      string    `bun:"name,notnull"`
	AppliedAt time.Time `bun:"applied_at,notnull"`
}

// columnTypes expands the migration placeholders for a dialect.
func columnTypes(name dialect.Name) *strings.Replacer {
	if name == dialect.PG {
		return strings.NewReplacer("{amount}", "NUMERIC(20,0)", "{ts}", "TIMESTAMPTZ")
	}
	return strings.NewReplacer("{amount}", "TEXT", "{ts}", "TIMESTAMP")
}

// migrate applies every migration not yet recorded in imprint_migrations.
// Each migration runs in its own transaction together with its record.
func migrate(ctx context.Context, db *bun.DB, migrations []Migration) error {
	if _, err := db.NewCreateTable().
		Model((*migrationModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var applied []migrationModel
	if err := db.NewSelect().Model(&applied).Scan(ctx); err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	expand := columnTypes(db.Dialect().Name())
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.ExecContext(ctx, expand.Replace(stmt)); err != nil {
					return err
				}
			}
			_, err := tx.NewInsert().Model(&migrationModel{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Exec(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}
