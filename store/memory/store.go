// Package memory provides an in-process store for tests and single-process
// deployments. Records are copied in and out so callers never share state
// with the store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	state store.State

	// Edition storage
	editions map[uint64]*edition.Edition

	// Holding storage, keyed by holder and edition
	holdings map[string]*holding.Holding

	// Append-only logs
	events   []*event.Event
	receipts []*receipt.Receipt
}

func New() *Store {
	return &Store{
		editions: make(map[uint64]*edition.Edition),
		holdings: make(map[string]*holding.Holding),
		events:   make([]*event.Event, 0),
		receipts: make([]*receipt.Receipt, 0),
	}
}

func holdingKey(holder id.ID, editionID uint64) string {
	return fmt.Sprintf("%s/%d", holder.String(), editionID)
}

// Edition Store implementation
func (s *Store) GetEdition(_ context.Context, editionID uint64) (*edition.Edition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}
	if e, ok := s.editions[editionID]; ok {
		return e.Clone(), nil
	}
	return nil, imprint.ErrEditionNotFound
}

func (s *Store) ListEditions(_ context.Context, opts edition.ListOpts) ([]*edition.Edition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}

	result := make([]*edition.Edition, 0, len(s.editions))
	for _, e := range s.editions {
		if opts.Author == "" || e.Author.String() == opts.Author {
			result = append(result, e.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *edition.Edition) int {
		return cmpUint64(a.ID, b.ID)
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// Holding Store implementation
func (s *Store) GetHolding(_ context.Context, holder id.ID, editionID uint64) (*holding.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}
	if h, ok := s.holdings[holdingKey(holder, editionID)]; ok {
		c := *h
		return &c, nil
	}
	return &holding.Holding{EditionID: editionID, Holder: holder}, nil
}

func (s *Store) ListHoldings(_ context.Context, opts holding.ListOpts) ([]*holding.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}

	result := make([]*holding.Holding, 0)
	for _, h := range s.holdings {
		if opts.Holder != "" && h.Holder.String() != opts.Holder {
			continue
		}
		if opts.EditionID != 0 && h.EditionID != opts.EditionID {
			continue
		}
		c := *h
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *holding.Holding) int {
		if c := cmpUint64(a.EditionID, b.EditionID); c != 0 {
			return c
		}
		switch {
		case a.Holder.String() < b.Holder.String():
			return -1
		case a.Holder.String() > b.Holder.String():
			return 1
		}
		return 0
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// Event Store implementation
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}

	result := make([]*event.Event, 0)
	for _, e := range s.events {
		if e.Seq <= opts.AfterSeq {
			continue
		}
		if opts.EditionID != 0 && e.EditionID != opts.EditionID {
			continue
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		c := *e
		result = append(result, &c)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// Receipt Store implementation
func (s *Store) ListReceipts(_ context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}

	result := make([]*receipt.Receipt, 0)
	for _, r := range s.receipts {
		if opts.Buyer != "" && r.Buyer.String() != opts.Buyer {
			continue
		}
		if opts.EditionID != 0 && r.EditionID != opts.EditionID {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// Ledger state
func (s *Store) GetState(_ context.Context) (*store.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, imprint.ErrStoreClosed
	}
	st := s.state
	return &st, nil
}

// Commit applies the batch under the write lock. Nothing in the batch is
// retained by reference.
func (s *Store) Commit(_ context.Context, b *store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return imprint.ErrStoreClosed
	}
	if b.Event != nil && b.Event.Seq != s.state.LastEventSeq+1 {
		return fmt.Errorf("%w: have %d, batch carries %d",
			store.ErrSequenceConflict, s.state.LastEventSeq, b.Event.Seq)
	}

	s.state = b.State
	if b.Edition != nil {
		s.editions[b.Edition.ID] = b.Edition.Clone()
	}
	if b.Holding != nil {
		h := *b.Holding
		s.holdings[holdingKey(h.Holder, h.EditionID)] = &h
	}
	if b.Receipt != nil {
		r := *b.Receipt
		s.receipts = append(s.receipts, &r)
	}
	if b.Event != nil {
		e := *b.Event
		s.events = append(s.events, &e)
	}
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return imprint.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Helper functions

// page treats a non-positive offset as the start and a non-positive limit
// as unbounded, matching the SQL and Mongo backends.
func page[T any](items []T, offset, limit int) []T {
	start := max(offset, 0)
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if limit > 0 && limit < end-start {
		end = start + limit
	}
	return items[start:end]
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
