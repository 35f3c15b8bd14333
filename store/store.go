package store

import (
	"context"
	"errors"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
)

// ErrSequenceConflict is returned by Commit when the batch's event does not
// carry the next sequence number, meaning another writer committed first.
var ErrSequenceConflict = errors.New("imprint/store: event sequence already committed")

// Store is the unified storage interface for all imprint records.
// Reads may run concurrently; Commit is the only write path and must apply a
// Batch atomically: either every record in it becomes visible or none does.
type Store interface {
	// Edition methods
	GetEdition(ctx context.Context, editionID uint64) (*edition.Edition, error)
	ListEditions(ctx context.Context, opts edition.ListOpts) ([]*edition.Edition, error)

	// Holding methods
	GetHolding(ctx context.Context, holder id.ID, editionID uint64) (*holding.Holding, error)
	ListHoldings(ctx context.Context, opts holding.ListOpts) ([]*holding.Holding, error)

	// Event methods
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Receipt methods
	ListReceipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error)

	// Ledger state
	GetState(ctx context.Context) (*State, error)
	Commit(ctx context.Context, b *Batch) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// State is the ledger-wide bookkeeping persisted alongside editions.
type State struct {
	LastEditionID uint64 `json:"last_edition_id"`
	LastEventSeq  uint64 `json:"last_event_seq"`
	Retained      uint64 `json:"retained"`
	Currency      string `json:"currency"`
	Custodian     id.ID  `json:"custodian"`
}

// Batch is the full effect of one ledger operation.
// Edition, Event and State are always set; Holding and Receipt only by a buy.
type Batch struct {
	State   State
	Edition *edition.Edition
	Holding *holding.Holding
	Receipt *receipt.Receipt
	Event   *event.Event
}
