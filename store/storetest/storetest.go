// Package storetest is a conformance suite run against every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// Factory returns a fresh, empty store. The suite migrates it.
type Factory func(t *testing.T) store.Store

// Run executes the full suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EmptyStore", testEmptyStore},
		{"CommitRoundTrip", testCommitRoundTrip},
		{"FullRangeAmounts", testFullRangeAmounts},
		{"SequenceConflict", testSequenceConflict},
		{"ListFilters", testListFilters},
		{"NegativePaging", testNegativePaging},
		{"LedgerFlow", testLedgerFlow},
		{"LedgerRestart", testLedgerRestart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			tt.fn(t, s)
		})
	}
}

// ts truncates to the precision every backend keeps.
func ts() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func publishBatch(seq, editionID uint64, author id.ID, amount, price uint64) *store.Batch {
	now := ts()
	return &store.Batch{
		State: store.State{LastEditionID: editionID, LastEventSeq: seq, Currency: "usd"},
		Edition: &edition.Edition{
			Entity:  types.Entity{CreatedAt: now, UpdatedAt: now},
			ID:      editionID,
			Author:  author,
			Price:   price,
			URI:     "ipfs://book",
			Custody: amount,
			Minted:  amount,
		},
		Event: &event.Event{
			ID:        id.NewEventID(),
			Seq:       seq,
			Kind:      event.KindPublished,
			EditionID: editionID,
			Actor:     author,
			Price:     price,
			Amount:    amount,
			URI:       "ipfs://book",
			CreatedAt: now,
		},
	}
}

func testEmptyStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.LastEditionID != 0 || st.LastEventSeq != 0 || st.Retained != 0 {
		t.Errorf("expected zero state, got %+v", st)
	}

	if _, err := s.GetEdition(ctx, 1); !errors.Is(err, imprint.ErrEditionNotFound) {
		t.Errorf("GetEdition on empty store: expected ErrEditionNotFound, got %v", err)
	}

	holder := id.NewAccountID()
	h, err := s.GetHolding(ctx, holder, 1)
	if err != nil {
		t.Fatalf("GetHolding: %v", err)
	}
	if h.Balance != 0 || !h.Holder.Equal(holder) || h.EditionID != 1 {
		t.Errorf("expected empty holding for %s/1, got %+v", holder, h)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func testCommitRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := id.NewAccountID()
	buyer := id.NewAccountID()

	if err := s.Commit(ctx, publishBatch(1, 1, author, 10, 250)); err != nil {
		t.Fatalf("Commit publish: %v", err)
	}

	now := ts()
	buy := &store.Batch{
		State: store.State{LastEditionID: 1, LastEventSeq: 2, Retained: 750, Currency: "usd"},
		Edition: &edition.Edition{
			Entity:  types.Entity{CreatedAt: now, UpdatedAt: now},
			ID:      1,
			Author:  author,
			Price:   250,
			URI:     "ipfs://book",
			Custody: 7,
			Minted:  10,
		},
		Holding: &holding.Holding{
			Entity:    types.Entity{CreatedAt: now, UpdatedAt: now},
			EditionID: 1,
			Holder:    buyer,
			Balance:   3,
		},
		Receipt: &receipt.Receipt{
			ID:        id.NewReceiptID(),
			EditionID: 1,
			Buyer:     buyer,
			Amount:    3,
			UnitPrice: 250,
			Paid:      types.USD(750),
			CreatedAt: now,
		},
		Event: &event.Event{
			ID:        id.NewEventID(),
			Seq:       2,
			Kind:      event.KindBought,
			EditionID: 1,
			Actor:     buyer,
			Amount:    3,
			UnitPrice: 250,
			CreatedAt: now,
		},
	}
	if err := s.Commit(ctx, buy); err != nil {
		t.Fatalf("Commit buy: %v", err)
	}

	e, err := s.GetEdition(ctx, 1)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if !e.Author.Equal(author) || e.Price != 250 || e.Custody != 7 || e.Minted != 10 || e.URI != "ipfs://book" {
		t.Errorf("unexpected edition: %+v", e)
	}

	h, err := s.GetHolding(ctx, buyer, 1)
	if err != nil {
		t.Fatalf("GetHolding: %v", err)
	}
	if h.Balance != 3 {
		t.Errorf("expected buyer balance 3, got %d", h.Balance)
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.LastEditionID != 1 || st.LastEventSeq != 2 || st.Retained != 750 || st.Currency != "usd" {
		t.Errorf("unexpected state: %+v", st)
	}

	receipts, err := s.ListReceipts(ctx, receipt.ListOpts{Buyer: buyer.String()})
	if err != nil {
		t.Fatalf("ListReceipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	if r := receipts[0]; r.Amount != 3 || !r.Paid.Equal(types.USD(750)) || r.ID.String() != buy.Receipt.ID.String() {
		t.Errorf("unexpected receipt: %+v", r)
	}

	events, err := s.ListEvents(ctx, event.ListOpts{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != event.KindPublished || events[1].Kind != event.KindBought {
		t.Errorf("unexpected event order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if !events[1].Actor.Equal(buyer) || events[1].UnitPrice != 250 {
		t.Errorf("unexpected bought event: %+v", events[1])
	}
}

func testFullRangeAmounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := id.NewAccountID()

	if err := s.Commit(ctx, publishBatch(1, 1, author, math.MaxUint64, math.MaxUint64)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	e, err := s.GetEdition(ctx, 1)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if e.Custody != math.MaxUint64 || e.Minted != math.MaxUint64 || e.Price != math.MaxUint64 {
		t.Errorf("uint64 range not preserved: custody=%d minted=%d price=%d", e.Custody, e.Minted, e.Price)
	}
}

func testSequenceConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := id.NewAccountID()

	if err := s.Commit(ctx, publishBatch(1, 1, author, 5, 100)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stale := publishBatch(1, 2, author, 9, 100)
	err := s.Commit(ctx, stale)
	if !errors.Is(err, store.ErrSequenceConflict) {
		t.Fatalf("expected ErrSequenceConflict, got %v", err)
	}

	if _, err := s.GetEdition(ctx, 2); !errors.Is(err, imprint.ErrEditionNotFound) {
		t.Errorf("conflicting batch must not be applied, GetEdition(2) = %v", err)
	}
	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.LastEditionID != 1 || st.LastEventSeq != 1 {
		t.Errorf("state changed by rejected batch: %+v", st)
	}
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := id.NewAccountID()
	bob := id.NewAccountID()

	for i, author := range []id.ID{alice, bob, alice} {
		n := uint64(i + 1)
		if err := s.Commit(ctx, publishBatch(n, n, author, 1, 10)); err != nil {
			t.Fatalf("Commit %d: %v", n, err)
		}
	}

	t.Run("EditionsByAuthor", func(t *testing.T) {
		got, err := s.ListEditions(ctx, edition.ListOpts{Author: alice.String()})
		if err != nil {
			t.Fatalf("ListEditions: %v", err)
		}
		if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
			t.Errorf("expected editions [1 3], got %d results", len(got))
		}
	})

	t.Run("EditionsPaged", func(t *testing.T) {
		got, err := s.ListEditions(ctx, edition.ListOpts{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListEditions: %v", err)
		}
		if len(got) != 1 || got[0].ID != 2 {
			t.Errorf("expected edition 2, got %v", got)
		}
	})

	t.Run("EventsAfterSeq", func(t *testing.T) {
		got, err := s.ListEvents(ctx, event.ListOpts{AfterSeq: 1})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
			t.Errorf("expected seqs [2 3], got %d events", len(got))
		}
	})

	t.Run("EventsByEditionAndKind", func(t *testing.T) {
		got, err := s.ListEvents(ctx, event.ListOpts{EditionID: 2, Kind: event.KindPublished})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 1 || got[0].EditionID != 2 {
			t.Errorf("expected one event for edition 2, got %d", len(got))
		}

		none, err := s.ListEvents(ctx, event.ListOpts{Kind: event.KindBought})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no bought events, got %d", len(none))
		}
	})

	t.Run("EventsLimit", func(t *testing.T) {
		got, err := s.ListEvents(ctx, event.ListOpts{Limit: 2})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 2 || got[0].Seq != 1 {
			t.Errorf("expected first 2 events, got %d", len(got))
		}
	})
}

func testNegativePaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := id.NewAccountID()

	for n := uint64(1); n <= 3; n++ {
		if err := s.Commit(ctx, publishBatch(n, n, author, 1, 10)); err != nil {
			t.Fatalf("Commit %d: %v", n, err)
		}
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   int
	}{
		{"negative limit", -1, 0, 3},
		{"negative offset", 0, -1, 3},
		{"both negative", -5, -5, 3},
		{"negative offset with limit", 2, -1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			editions, err := s.ListEditions(ctx, edition.ListOpts{Limit: tt.limit, Offset: tt.offset})
			if err != nil {
				t.Fatalf("ListEditions: %v", err)
			}
			if len(editions) != tt.want {
				t.Errorf("ListEditions: expected %d, got %d", tt.want, len(editions))
			}
			if len(editions) > 0 && editions[0].ID != 1 {
				t.Errorf("ListEditions: expected first edition 1, got %d", editions[0].ID)
			}

			if _, err := s.ListHoldings(ctx, holding.ListOpts{Limit: tt.limit, Offset: tt.offset}); err != nil {
				t.Errorf("ListHoldings: %v", err)
			}
			if _, err := s.ListReceipts(ctx, receipt.ListOpts{Limit: tt.limit, Offset: tt.offset}); err != nil {
				t.Errorf("ListReceipts: %v", err)
			}

			events, err := s.ListEvents(ctx, event.ListOpts{Limit: tt.limit})
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			want := 3
			if tt.limit > 0 {
				want = tt.limit
			}
			if len(events) != want {
				t.Errorf("ListEvents: expected %d, got %d", want, len(events))
			}
		})
	}
}

func testLedgerFlow(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := id.NewAccountID()
	buyer := id.NewAccountID()

	l := imprint.New(s)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	authorCtx := imprint.WithCaller(ctx, author)
	buyerCtx := imprint.WithCaller(ctx, buyer)

	editionID, err := l.Publish(authorCtx, 10, 300, "ipfs://a")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(buyerCtx, editionID, 4, types.USD(1200)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}

	err = l.BuyBook(buyerCtx, editionID, 7, types.USD(2100))
	var short *imprint.NotEnoughSupplyError
	if !errors.As(err, &short) || short.Available != 6 {
		t.Fatalf("expected NotEnoughSupply(6), got %v", err)
	}

	custody, err := l.CustodyBalanceOf(ctx, l.Custodian(), editionID)
	if err != nil {
		t.Fatalf("CustodyBalanceOf custodian: %v", err)
	}
	held, err := l.CustodyBalanceOf(ctx, buyer, editionID)
	if err != nil {
		t.Fatalf("CustodyBalanceOf buyer: %v", err)
	}
	if custody != 6 || held != 4 {
		t.Errorf("expected custody 6 / buyer 4, got %d / %d", custody, held)
	}

	retained, err := l.Retained(ctx)
	if err != nil {
		t.Fatalf("Retained: %v", err)
	}
	if !retained.Equal(types.USD(1200)) {
		t.Errorf("expected retained 1200, got %s", retained)
	}

	events, err := l.Events(ctx, event.ListOpts{EditionID: editionID})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events (rejected buy adds none), got %d", len(events))
	}
}

func testLedgerRestart(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := imprint.WithCaller(ctx, id.NewAccountID())

	first := imprint.New(s)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := first.Publish(author, 1, 1, "a"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	second := imprint.New(s)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	next, err := second.Publish(author, 1, 1, "b")
	if err != nil {
		t.Fatalf("Publish after restart: %v", err)
	}
	if next != 2 {
		t.Errorf("edition ids must continue after restart: expected 2, got %d", next)
	}

	if !second.Custodian().Equal(first.Custodian()) {
		t.Errorf("custodian must be reloaded: expected %s, got %s", first.Custodian(), second.Custodian())
	}
	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.Custodian.Equal(first.Custodian()) {
		t.Errorf("expected persisted custodian %s, got %s", first.Custodian(), st.Custodian)
	}

	third := imprint.New(s, imprint.WithCurrency("eur"))
	if err := third.Start(ctx); !errors.Is(err, imprint.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch for a store settled in usd, got %v", err)
	}

	fourth := imprint.New(s, imprint.WithCustodian(id.NewAccountID()))
	if err := fourth.Start(ctx); !errors.Is(err, imprint.ErrCustodianMismatch) {
		t.Errorf("expected ErrCustodianMismatch for a different custodian, got %v", err)
	}

	same := imprint.New(s, imprint.WithCustodian(first.Custodian()))
	if err := same.Start(ctx); err != nil {
		t.Errorf("restart with the stored custodian: %v", err)
	}
}
