// Package sqlstore implements store.Store on top of bun. It is shared by the
// sqlite and postgres packages, which only differ in driver and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	imprintstore "github.com/xraph/imprint/store"
)

// compile-time interface check
var _ imprintstore.Store = (*Store)(nil)

// Store implements store.Store using bun.
type Store struct {
	db *bun.DB
}

// New creates a store on an open bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db, Migrations); err != nil {
		return fmt.Errorf("imprint/sql: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ==================== Edition Store ====================

func (s *Store) GetEdition(ctx context.Context, editionID uint64) (*edition.Edition, error) {
	if editionID > math.MaxInt64 {
		return nil, imprint.ErrEditionNotFound
	}
	m := new(editionModel)
	err := s.db.NewSelect().
		Model(m).
		Where("?TableAlias.id = ?", int64(editionID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, imprint.ErrEditionNotFound
		}
		return nil, err
	}
	return fromEditionModel(m)
}

func (s *Store) ListEditions(ctx context.Context, opts edition.ListOpts) ([]*edition.Edition, error) {
	var models []editionModel
	q := s.db.NewSelect().Model(&models)

	if opts.Author != "" {
		q = q.Where("?TableAlias.author = ?", opts.Author)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("?TableAlias.id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*edition.Edition, len(models))
	for i := range models {
		e, err := fromEditionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Holding Store ====================

func (s *Store) GetHolding(ctx context.Context, holder id.ID, editionID uint64) (*holding.Holding, error) {
	empty := &holding.Holding{EditionID: editionID, Holder: holder}
	if editionID > math.MaxInt64 {
		return empty, nil
	}

	m := new(holdingModel)
	err := s.db.NewSelect().
		Model(m).
		Where("?TableAlias.holder = ?", holder.String()).
		Where("?TableAlias.edition_id = ?", int64(editionID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return empty, nil
		}
		return nil, err
	}
	return fromHoldingModel(m)
}

func (s *Store) ListHoldings(ctx context.Context, opts holding.ListOpts) ([]*holding.Holding, error) {
	var models []holdingModel
	q := s.db.NewSelect().Model(&models)

	if opts.Holder != "" {
		q = q.Where("?TableAlias.holder = ?", opts.Holder)
	}
	if opts.EditionID != 0 {
		q = q.Where("?TableAlias.edition_id = ?", int64(opts.EditionID)) //nolint:gosec // edition ids are sequential
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("?TableAlias.edition_id ASC, ?TableAlias.holder ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*holding.Holding, len(models))
	for i := range models {
		h, err := fromHoldingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = h
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models)

	if opts.AfterSeq > 0 {
		q = q.Where("?TableAlias.seq > ?", int64(opts.AfterSeq)) //nolint:gosec // event seqs are sequential
	}
	if opts.EditionID != 0 {
		q = q.Where("?TableAlias.edition_id = ?", int64(opts.EditionID)) //nolint:gosec // edition ids are sequential
	}
	if opts.Kind != "" {
		q = q.Where("?TableAlias.kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("?TableAlias.seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Receipt Store ====================

func (s *Store) ListReceipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	var models []receiptModel
	q := s.db.NewSelect().Model(&models)

	if opts.Buyer != "" {
		q = q.Where("?TableAlias.buyer = ?", opts.Buyer)
	}
	if opts.EditionID != 0 {
		q = q.Where("?TableAlias.edition_id = ?", int64(opts.EditionID)) //nolint:gosec // edition ids are sequential
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*receipt.Receipt, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Ledger state ====================

func (s *Store) GetState(ctx context.Context) (*imprintstore.State, error) {
	m, err := s.loadState(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	return fromStateModel(m)
}

// loadState reads the single state row, returning a zero row if none has
// been written yet.
func (s *Store) loadState(ctx context.Context, db bun.IDB, forUpdate bool) (*stateModel, error) {
	m := new(stateModel)
	q := db.NewSelect().
		Model(m).
		Where("?TableAlias.id = ?", stateRowID)
	if forUpdate && s.db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return &stateModel{ID: stateRowID, Retained: "0"}, nil
		}
		return nil, err
	}
	return m, nil
}

// Commit writes the batch in one transaction. The batch's event must carry
// the next sequence number; otherwise another writer got there first and
// store.ErrSequenceConflict is returned with nothing written.
func (s *Store) Commit(ctx context.Context, b *imprintstore.Batch) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		cur, err := s.loadState(ctx, tx, true)
		if err != nil {
			return err
		}
		if b.Event != nil && uint64(cur.LastEventSeq)+1 != b.Event.Seq { //nolint:gosec // never negative
			return fmt.Errorf("%w: have %d, batch carries %d",
				imprintstore.ErrSequenceConflict, cur.LastEventSeq, b.Event.Seq)
		}

		if _, err := tx.NewInsert().
			Model(toStateModel(b.State)).
			On("CONFLICT (id) DO UPDATE").
			Set("last_edition_id = EXCLUDED.last_edition_id").
			Set("last_event_seq = EXCLUDED.last_event_seq").
			Set("retained = EXCLUDED.retained").
			Set("currency = EXCLUDED.currency").
			Set("custodian = EXCLUDED.custodian").
			Exec(ctx); err != nil {
			return fmt.Errorf("imprint/sql: write state: %w", err)
		}

		if b.Edition != nil {
			if _, err := tx.NewInsert().
				Model(toEditionModel(b.Edition)).
				On("CONFLICT (id) DO UPDATE").
				Set("price = EXCLUDED.price").
				Set("uri = EXCLUDED.uri").
				Set("custody = EXCLUDED.custody").
				Set("minted = EXCLUDED.minted").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("imprint/sql: write edition %d: %w", b.Edition.ID, err)
			}
		}

		if b.Holding != nil {
			if _, err := tx.NewInsert().
				Model(toHoldingModel(b.Holding)).
				On("CONFLICT (holder, edition_id) DO UPDATE").
				Set("balance = EXCLUDED.balance").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("imprint/sql: write holding: %w", err)
			}
		}

		if b.Receipt != nil {
			if _, err := tx.NewInsert().Model(toReceiptModel(b.Receipt)).Exec(ctx); err != nil {
				return fmt.Errorf("imprint/sql: write receipt: %w", err)
			}
		}

		if b.Event != nil {
			if _, err := tx.NewInsert().Model(toEventModel(b.Event)).Exec(ctx); err != nil {
				return fmt.Errorf("imprint/sql: write event: %w", err)
			}
		}
		return nil
	})
}
