package imprint_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store/memory"
	"github.com/xraph/imprint/types"
)

func newLedger(t *testing.T, opts ...imprint.Option) *imprint.Ledger {
	t.Helper()
	opts = append([]imprint.Option{imprint.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	l := imprint.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return l
}

func as(who id.ID) context.Context {
	return imprint.WithCaller(context.Background(), who)
}

func custody(t *testing.T, l *imprint.Ledger, editionID uint64) uint64 {
	t.Helper()
	n, err := l.CustodyBalanceOf(context.Background(), l.Custodian(), editionID)
	if err != nil {
		t.Fatalf("CustodyBalanceOf custodian: %v", err)
	}
	return n
}

func balance(t *testing.T, l *imprint.Ledger, holder id.ID, editionID uint64) uint64 {
	t.Helper()
	n, err := l.CustodyBalanceOf(context.Background(), holder, editionID)
	if err != nil {
		t.Fatalf("CustodyBalanceOf: %v", err)
	}
	return n
}

func eventCount(t *testing.T, l *imprint.Ledger) int {
	t.Helper()
	events, err := l.Events(context.Background(), event.ListOpts{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	return len(events)
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestScenarioPublish(t *testing.T) {
	l := newLedger(t)
	x := id.NewAccountID()
	ctx := context.Background()

	editionID, err := l.Publish(as(x), 10, 1, "u1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if editionID != 1 {
		t.Errorf("expected first edition id 1, got %d", editionID)
	}

	author, err := l.AuthorOf(ctx, 1)
	if err != nil {
		t.Fatalf("AuthorOf: %v", err)
	}
	if !author.Equal(x) {
		t.Errorf("expected author %s, got %s", x, author)
	}
	if got := custody(t, l, 1); got != 10 {
		t.Errorf("expected custody 10, got %d", got)
	}
	uri, err := l.URIOf(ctx, 1)
	if err != nil {
		t.Fatalf("URIOf: %v", err)
	}
	if uri != "u1" {
		t.Errorf("expected uri u1, got %q", uri)
	}
}

func TestScenarioBuy(t *testing.T) {
	l := newLedger(t)
	x, y := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(x), 10, 2, "u1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := l.BuyBook(as(y), editionID, 3, types.USD(6)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}
	if got := custody(t, l, editionID); got != 7 {
		t.Errorf("expected custody 7, got %d", got)
	}
	if got := balance(t, l, y, editionID); got != 3 {
		t.Errorf("expected buyer balance 3, got %d", got)
	}

	err = l.BuyBook(as(y), editionID, 3, types.USD(5))
	var payment *imprint.InvalidPaymentError
	if !errors.As(err, &payment) {
		t.Fatalf("expected InvalidPaymentError, got %v", err)
	}
	if payment.Required.Amount != 6 {
		t.Errorf("expected required 6, got %d", payment.Required.Amount)
	}
	if !errors.Is(err, imprint.ErrInvalidPayment) {
		t.Error("InvalidPaymentError must match ErrInvalidPayment")
	}
	if custody(t, l, editionID) != 7 || balance(t, l, y, editionID) != 3 {
		t.Error("rejected buy changed balances")
	}
}

func TestScenarioChangePriceGuards(t *testing.T) {
	l := newLedger(t)
	x, z := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(x), 1, 1, "u1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := l.ChangePrice(as(z), editionID, 5); !errors.Is(err, imprint.ErrNotAuthor) {
		t.Errorf("expected ErrNotAuthor, got %v", err)
	}
	if err := l.ChangePrice(as(x), editionID, 0); !errors.Is(err, imprint.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}

	price, err := l.PriceOf(context.Background(), editionID)
	if err != nil {
		t.Fatalf("PriceOf: %v", err)
	}
	if price.Amount != 1 {
		t.Errorf("rejected price changes must not apply, got %d", price.Amount)
	}
}

func TestScenarioBuyUnpublished(t *testing.T) {
	l := newLedger(t)

	err := l.BuyBook(as(id.NewAccountID()), 99, 1, types.USD(1))
	if !errors.Is(err, imprint.ErrUnpublishedBook) {
		t.Fatalf("expected ErrUnpublishedBook, got %v", err)
	}
	if eventCount(t, l) != 0 {
		t.Error("rejected buy emitted an event")
	}
}

// ──────────────────────────────────────────────────
// Properties
// ──────────────────────────────────────────────────

func TestConservation(t *testing.T) {
	l := newLedger(t)
	author := id.NewAccountID()
	buyers := []id.ID{id.NewAccountID(), id.NewAccountID(), id.NewAccountID()}

	editionID, err := l.Publish(as(author), 20, 3, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	minted := uint64(20)

	total := func() uint64 {
		sum := custody(t, l, editionID)
		for _, b := range buyers {
			sum += balance(t, l, b, editionID)
		}
		return sum
	}

	steps := []struct {
		name string
		run  func() error
		mint uint64
	}{
		{"buy 5", func() error { return l.BuyBook(as(buyers[0]), editionID, 5, types.USD(15)) }, 0},
		{"buy too many", func() error { return l.BuyBook(as(buyers[1]), editionID, 16, types.USD(48)) }, 0},
		{"increase 7", func() error { return l.IncreaseSupply(as(author), editionID, 7, 3, "u") }, 7},
		{"underpay", func() error { return l.BuyBook(as(buyers[1]), editionID, 2, types.USD(5)) }, 0},
		{"buy 22", func() error { return l.BuyBook(as(buyers[1]), editionID, 22, types.USD(66)) }, 0},
		{"non-author increase", func() error { return l.IncreaseSupply(as(buyers[2]), editionID, 100, 3, "u") }, 0},
		{"buy from empty", func() error { return l.BuyBook(as(buyers[2]), editionID, 1, types.USD(3)) }, 0},
		{"replenish", func() error { return l.IncreaseSupply(as(author), editionID, 4, 3, "u") }, 4},
		{"buy 4", func() error { return l.BuyBook(as(buyers[2]), editionID, 4, types.USD(12)) }, 0},
	}

	prev := total()
	for _, step := range steps {
		err := step.run()
		if step.mint > 0 && err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if err == nil {
			minted += step.mint
		}

		got := total()
		if got < prev {
			t.Fatalf("%s: supply decreased from %d to %d", step.name, prev, got)
		}
		if got != minted {
			t.Fatalf("%s: custody+holdings = %d, minted = %d", step.name, got, minted)
		}
		prev = got
	}

	e, err := l.Edition(context.Background(), editionID)
	if err != nil {
		t.Fatalf("Edition: %v", err)
	}
	if e.Minted != minted || e.Custody != 0 || e.Sold() != minted {
		t.Errorf("unexpected final edition: %+v", e)
	}
}

func TestConservationAgainstEvents(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), math.MaxUint64, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, 3, types.USD(3)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}
	if err := l.IncreaseSupply(as(author), editionID, 3, 1, "u"); err != nil {
		t.Fatalf("IncreaseSupply: %v", err)
	}

	events, err := l.Events(ctx, event.ListOpts{EditionID: editionID})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var minted, sold uint64
	for _, evt := range events {
		switch evt.Kind {
		case event.KindPublished, event.KindSupplyIncreased:
			minted += evt.Amount
		case event.KindBought:
			sold += evt.Amount
		}
	}

	// minted wraps past math.MaxUint64 here; the difference is still exact.
	if got := custody(t, l, editionID); got != minted-sold {
		t.Errorf("custody = %d, minted-sold from events = %d", got, minted-sold)
	}
	if got := balance(t, l, buyer, editionID); got != sold {
		t.Errorf("buyer balance = %d, sold from events = %d", got, sold)
	}

	e, err := l.Edition(ctx, editionID)
	if err != nil {
		t.Fatalf("Edition: %v", err)
	}
	if e.Minted != math.MaxUint64 {
		t.Errorf("Minted should saturate at math.MaxUint64, got %d", e.Minted)
	}
}

func TestAuthorImmutability(t *testing.T) {
	l := newLedger(t)
	author, other := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 5, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = l.IncreaseSupply(as(other), editionID, 1, 1, "x")
	_ = l.Reissue(as(other), editionID, 1, 1, "x")
	_ = l.ChangePrice(as(other), editionID, 9)
	_ = l.ChangeURI(as(other), editionID, "x")
	_ = l.BuyBook(as(other), editionID, 5, types.USD(5))
	_ = l.IncreaseSupply(as(author), editionID, 1, 2, "y")

	got, err := l.AuthorOf(context.Background(), editionID)
	if err != nil {
		t.Fatalf("AuthorOf: %v", err)
	}
	if !got.Equal(author) {
		t.Errorf("author changed from %s to %s", author, got)
	}
}

func TestExactPayment(t *testing.T) {
	tests := []struct {
		name    string
		price   uint64
		amount  uint64
		payment types.Money
		wantErr error
	}{
		{"exact", 250, 4, types.USD(1000), nil},
		{"underpay", 250, 4, types.USD(999), imprint.ErrInvalidPayment},
		{"overpay", 250, 4, types.USD(1001), imprint.ErrInvalidPayment},
		{"wrong currency", 250, 4, types.EUR(1000), imprint.ErrInvalidPayment},
		{"zero amount zero payment", 250, 0, types.USD(0), nil},
		{"zero amount nonzero payment", 250, 0, types.USD(1), imprint.ErrInvalidPayment},
		{"total overflows", math.MaxUint64, 2, types.USD(math.MaxUint64), imprint.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			author, buyer := id.NewAccountID(), id.NewAccountID()

			editionID, err := l.Publish(as(author), 10, tt.price, "u")
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}

			err = l.BuyBook(as(buyer), editionID, tt.amount, tt.payment)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("BuyBook: %v", err)
				}
				if got := balance(t, l, buyer, editionID); got != tt.amount {
					t.Errorf("expected balance %d, got %d", tt.amount, got)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if custody(t, l, editionID) != 10 || balance(t, l, buyer, editionID) != 0 {
				t.Error("rejected buy changed balances")
			}
			retained, err := l.Retained(context.Background())
			if err != nil {
				t.Fatalf("Retained: %v", err)
			}
			if !retained.IsZero() {
				t.Errorf("rejected buy retained %s", retained)
			}
		})
	}
}

func TestInvalidPaymentReportsRequiredTotal(t *testing.T) {
	l := newLedger(t)
	editionID, err := l.Publish(as(id.NewAccountID()), 10, 7, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	err = l.BuyBook(as(id.NewAccountID()), editionID, 3, types.USD(1))
	var payment *imprint.InvalidPaymentError
	if !errors.As(err, &payment) {
		t.Fatalf("expected InvalidPaymentError, got %v", err)
	}
	if !payment.Required.Equal(types.USD(21)) || !payment.Tendered.Equal(types.USD(1)) {
		t.Errorf("unexpected payload: required=%s tendered=%s", payment.Required, payment.Tendered)
	}
}

func TestReissue(t *testing.T) {
	l := newLedger(t)
	author, other := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 3, 1, "u1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := l.Reissue(as(author), editionID, 4, 2, "u2"); err != nil {
		t.Fatalf("Reissue by author: %v", err)
	}
	if got := custody(t, l, editionID); got != 7 {
		t.Errorf("re-publish must accumulate supply: expected 7, got %d", got)
	}

	if err := l.Reissue(as(other), editionID, 4, 2, "u3"); !errors.Is(err, imprint.ErrNotAuthor) {
		t.Errorf("expected ErrNotAuthor, got %v", err)
	}
	if err := l.Reissue(as(author), 42, 1, 1, "u"); !errors.Is(err, imprint.ErrUnpublishedBook) {
		t.Errorf("expected ErrUnpublishedBook, got %v", err)
	}

	uri, err := l.URIOf(context.Background(), editionID)
	if err != nil {
		t.Fatalf("URIOf: %v", err)
	}
	if uri != "u2" {
		t.Errorf("expected uri u2, got %q", uri)
	}
}

func TestOverflowGuard(t *testing.T) {
	l := newLedger(t)
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), math.MaxUint64-1, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := l.IncreaseSupply(as(author), editionID, 1, 1, "u"); err != nil {
		t.Fatalf("increase to exactly max: %v", err)
	}
	if err := l.IncreaseSupply(as(author), editionID, 1, 1, "u"); !errors.Is(err, imprint.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := custody(t, l, editionID); got != math.MaxUint64 {
		t.Errorf("custody must not wrap, got %d", got)
	}

	// Once units leave custody there is room again.
	if err := l.BuyBook(as(buyer), editionID, 5, types.USD(5)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}
	if err := l.IncreaseSupply(as(author), editionID, 5, 1, "u"); err != nil {
		t.Errorf("increase back to max after a sale: %v", err)
	}
	if err := l.IncreaseSupply(as(author), editionID, 1, 1, "u"); !errors.Is(err, imprint.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGuardOrder(t *testing.T) {
	l := newLedger(t)
	author, other := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), math.MaxUint64, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	tests := []struct {
		name    string
		caller  id.ID
		edition uint64
		wantErr error
	}{
		{"unpublished first", other, 77, imprint.ErrUnpublishedBook},
		{"author before amount", other, editionID, imprint.ErrNotAuthor},
		{"amount before price", author, editionID, imprint.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// amount overflows and price is zero in every case
			err := l.IncreaseSupply(as(tt.caller), tt.edition, 1, 0, "u")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHolderBalanceOverflow(t *testing.T) {
	l := newLedger(t)
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), math.MaxUint64, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, math.MaxUint64, types.USD(math.MaxUint64)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}
	if err := l.IncreaseSupply(as(author), editionID, 1, 1, "u"); err != nil {
		t.Fatalf("IncreaseSupply: %v", err)
	}

	err = l.BuyBook(as(buyer), editionID, 1, types.USD(1))
	if !errors.Is(err, imprint.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := balance(t, l, buyer, editionID); got != math.MaxUint64 {
		t.Errorf("holder balance must not wrap, got %d", got)
	}
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

func TestUnpublishedReadsAreZero(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	author, err := l.AuthorOf(ctx, 5)
	if err != nil || !author.IsNil() {
		t.Errorf("AuthorOf: expected Nil, got %s (%v)", author, err)
	}
	price, err := l.PriceOf(ctx, 5)
	if err != nil || !price.IsZero() || price.Currency != "usd" {
		t.Errorf("PriceOf: expected zero usd, got %s (%v)", price, err)
	}
	uri, err := l.URIOf(ctx, 5)
	if err != nil || uri != "" {
		t.Errorf("URIOf: expected empty, got %q (%v)", uri, err)
	}
	if got := custody(t, l, 5); got != 0 {
		t.Errorf("custody: expected 0, got %d", got)
	}
	if _, err := l.Edition(ctx, 5); !imprint.IsNotFound(err) {
		t.Errorf("Edition: expected not found, got %v", err)
	}
}

func TestListings(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	author, buyer := id.NewAccountID(), id.NewAccountID()

	first, _ := l.Publish(as(author), 5, 10, "a")
	second, _ := l.Publish(as(author), 5, 20, "b")
	if err := l.BuyBook(as(buyer), first, 1, types.USD(10)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}
	if err := l.BuyBook(as(buyer), second, 2, types.USD(40)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}

	holdings, err := l.Holdings(ctx, holding.ListOpts{Holder: buyer.String()})
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(holdings) != 2 || holdings[0].Balance != 1 || holdings[1].Balance != 2 {
		t.Errorf("unexpected holdings: %d entries", len(holdings))
	}

	receipts, err := l.Receipts(ctx, receipt.ListOpts{EditionID: second})
	if err != nil {
		t.Fatalf("Receipts: %v", err)
	}
	if len(receipts) != 1 || !receipts[0].Paid.Equal(types.USD(40)) || receipts[0].UnitPrice != 20 {
		t.Errorf("unexpected receipts: %+v", receipts)
	}

	bought, err := l.Events(ctx, event.ListOpts{Kind: event.KindBought})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(bought) != 2 || !bought[0].Actor.Equal(buyer) {
		t.Errorf("expected 2 bought events by buyer, got %d", len(bought))
	}

	retained, err := l.Retained(ctx)
	if err != nil {
		t.Fatalf("Retained: %v", err)
	}
	if !retained.Equal(types.USD(50)) {
		t.Errorf("expected retained 50, got %s", retained)
	}
}

func TestListingsIgnoreNegativePaging(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, _ := l.Publish(as(author), 5, 10, "a")
	if _, err := l.Publish(as(author), 5, 10, "b"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, 1, types.USD(10)); err != nil {
		t.Fatalf("BuyBook: %v", err)
	}

	editions, err := l.Editions(ctx, edition.ListOpts{Limit: -1, Offset: -1})
	if err != nil {
		t.Fatalf("Editions: %v", err)
	}
	if len(editions) != 2 {
		t.Errorf("expected 2 editions, got %d", len(editions))
	}

	holdings, err := l.Holdings(ctx, holding.ListOpts{Limit: -1, Offset: -1})
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(holdings) != 1 {
		t.Errorf("expected 1 holding, got %d", len(holdings))
	}

	receipts, err := l.Receipts(ctx, receipt.ListOpts{Limit: -1, Offset: -1})
	if err != nil {
		t.Fatalf("Receipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Errorf("expected 1 receipt, got %d", len(receipts))
	}
}

func TestEventPayloads(t *testing.T) {
	l := newLedger(t)
	author := id.NewAccountID()

	editionID, _ := l.Publish(as(author), 3, 10, "a")
	_ = l.IncreaseSupply(as(author), editionID, 2, 10, "a")
	_ = l.ChangePrice(as(author), editionID, 15)
	_ = l.ChangeURI(as(author), editionID, "b")

	events, err := l.Events(context.Background(), event.ListOpts{EditionID: editionID})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
	if e := events[0]; e.Kind != event.KindPublished || !e.Actor.Equal(author) || e.Price != 10 {
		t.Errorf("unexpected published event: %+v", e)
	}
	if e := events[1]; e.Kind != event.KindSupplyIncreased || e.Amount != 2 || e.NewTotal != 5 {
		t.Errorf("unexpected supply event: %+v", e)
	}
	if e := events[2]; e.Kind != event.KindPriceUpdated || e.Price != 15 {
		t.Errorf("unexpected price event: %+v", e)
	}
	if e := events[3]; e.Kind != event.KindURIUpdated || e.URI != "b" {
		t.Errorf("unexpected uri event: %+v", e)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle and caller
// ──────────────────────────────────────────────────

func TestRequiresCaller(t *testing.T) {
	l := newLedger(t)

	if _, err := l.Publish(context.Background(), 1, 1, "u"); !errors.Is(err, imprint.ErrNoCaller) {
		t.Errorf("expected ErrNoCaller, got %v", err)
	}
	if _, err := l.Publish(as(id.Nil), 1, 1, "u"); !errors.Is(err, imprint.ErrNoCaller) {
		t.Errorf("Nil caller: expected ErrNoCaller, got %v", err)
	}
}

func TestRequiresStart(t *testing.T) {
	l := imprint.New(memory.New())

	if _, err := l.Publish(as(id.NewAccountID()), 1, 1, "u"); !errors.Is(err, imprint.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if !imprint.IsRetryable(imprint.ErrNotStarted) {
		t.Error("ErrNotStarted should be retryable")
	}
}

func TestCurrencyOption(t *testing.T) {
	l := newLedger(t, imprint.WithCurrency("EUR"))
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 2, 100, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, 1, types.USD(100)); !errors.Is(err, imprint.ErrInvalidPayment) {
		t.Errorf("usd payment on eur ledger: expected ErrInvalidPayment, got %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, 1, types.EUR(100)); err != nil {
		t.Errorf("eur payment: %v", err)
	}
	if l.Currency() != "eur" {
		t.Errorf("expected currency eur, got %s", l.Currency())
	}
}

func TestCustodianOption(t *testing.T) {
	custodian := id.NewAccountID()
	l := newLedger(t, imprint.WithCustodian(custodian))

	editionID, err := l.Publish(as(id.NewAccountID()), 4, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := balance(t, l, custodian, editionID); got != 4 {
		t.Errorf("expected custodian balance 4, got %d", got)
	}
}

func TestCustodianCannotActAsCaller(t *testing.T) {
	custodian := id.NewAccountID()
	author := id.NewAccountID()
	l := newLedger(t, imprint.WithCustodian(custodian))

	editionID, err := l.Publish(as(author), 10, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ops := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"buy", func(ctx context.Context) error {
			return l.BuyBook(ctx, editionID, 3, types.USD(3))
		}},
		{"publish", func(ctx context.Context) error {
			_, err := l.Publish(ctx, 1, 1, "c")
			return err
		}},
		{"increase supply", func(ctx context.Context) error {
			return l.IncreaseSupply(ctx, editionID, 1, 1, "c")
		}},
		{"change price", func(ctx context.Context) error {
			return l.ChangePrice(ctx, editionID, 2)
		}},
		{"change uri", func(ctx context.Context) error {
			return l.ChangeURI(ctx, editionID, "c")
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			err := op.call(as(custodian))
			if !errors.Is(err, imprint.ErrCustodianCaller) {
				t.Fatalf("expected ErrCustodianCaller, got %v", err)
			}
			if !imprint.IsRejection(err) {
				t.Error("expected the error to classify as a rejection")
			}
		})
	}

	if got := custody(t, l, editionID); got != 10 {
		t.Errorf("expected all 10 minted units in custody, got %d", got)
	}
	holdings, err := l.Holdings(context.Background(), holding.ListOpts{EditionID: editionID})
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(holdings) != 0 {
		t.Errorf("expected no holdings, got %d", len(holdings))
	}
	if n := eventCount(t, l); n != 1 {
		t.Errorf("expected only the publish event, got %d", n)
	}
}

func TestSupports(t *testing.T) {
	l := newLedger(t)

	for _, c := range imprint.Capabilities() {
		if !l.Supports(c) {
			t.Errorf("expected support for %s", c)
		}
	}
	if l.Supports(imprint.Capability("imprint.royalties.v1")) {
		t.Error("unexpected support for unknown capability")
	}
}

// ──────────────────────────────────────────────────
// Reentrance and hooks
// ──────────────────────────────────────────────────

// nestedCaller tries to re-enter the ledger from inside a receive hook and
// from a post-commit notification.
type nestedCaller struct {
	l *imprint.Ledger

	mu          sync.Mutex
	receiveErr  error
	notifyErr   error
	busyInHook  bool
	receiveSeen bool
}

func (p *nestedCaller) Name() string { return "nested-caller" }

func (p *nestedCaller) OnReceive(ctx context.Context, buyer id.ID, editionID, amount uint64) error {
	err := p.l.BuyBook(ctx, editionID, 1, types.USD(1))
	p.mu.Lock()
	p.receiveSeen = true
	p.receiveErr = err
	p.busyInHook = p.l.Busy()
	p.mu.Unlock()
	return nil
}

func (p *nestedCaller) OnBought(ctx context.Context, evt *event.Event) error {
	_, err := p.l.Publish(ctx, 1, 1, "nested")
	p.mu.Lock()
	p.notifyErr = err
	p.mu.Unlock()
	return nil
}

func TestReentrantCallsAreRejected(t *testing.T) {
	hook := &nestedCaller{}
	l := newLedger(t, imprint.WithPlugin(hook))
	hook.l = l
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 5, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := l.BuyBook(as(buyer), editionID, 2, types.USD(2)); err != nil {
		t.Fatalf("outer BuyBook: %v", err)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()

	if !hook.receiveSeen {
		t.Fatal("receive hook did not run")
	}
	if !errors.Is(hook.receiveErr, imprint.ErrReentrant) {
		t.Errorf("nested buy: expected ErrReentrant, got %v", hook.receiveErr)
	}
	if !errors.Is(hook.notifyErr, imprint.ErrReentrant) {
		t.Errorf("nested publish: expected ErrReentrant, got %v", hook.notifyErr)
	}
	if !hook.busyInHook {
		t.Error("ledger should report busy while a hook runs")
	}
	if l.Busy() {
		t.Error("lock must be released after the operation")
	}

	if got := balance(t, l, buyer, editionID); got != 2 {
		t.Errorf("only the outer buy may apply: expected 2, got %d", got)
	}
	editions, err := l.Editions(context.Background(), edition.ListOpts{})
	if err != nil {
		t.Fatalf("Editions: %v", err)
	}
	if len(editions) != 1 {
		t.Errorf("nested publish must not apply: %d editions", len(editions))
	}
}

type rejectingHook struct{ err error }

func (h rejectingHook) Name() string { return "rejecting" }

func (h rejectingHook) OnReceive(context.Context, id.ID, uint64, uint64) error { return h.err }

func TestReceiveHookRejection(t *testing.T) {
	refused := errors.New("buyer does not accept transfers")
	l := newLedger(t, imprint.WithPlugin(rejectingHook{err: refused}))
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 5, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	before := eventCount(t, l)

	err = l.BuyBook(as(buyer), editionID, 2, types.USD(2))
	if !errors.Is(err, imprint.ErrHookRejected) || !errors.Is(err, refused) {
		t.Fatalf("expected hook rejection wrapping the hook error, got %v", err)
	}
	var hookErr *imprint.HookError
	if !errors.As(err, &hookErr) || hookErr.Plugin != "rejecting" {
		t.Errorf("expected HookError from plugin rejecting, got %v", err)
	}

	if custody(t, l, editionID) != 5 || balance(t, l, buyer, editionID) != 0 {
		t.Error("rejected buy changed balances")
	}
	if eventCount(t, l) != before {
		t.Error("rejected buy emitted an event")
	}

	// Lock is released on the error path.
	if err := l.ChangeURI(as(author), editionID, "v"); err != nil {
		t.Errorf("ledger unusable after rejection: %v", err)
	}
}

// lateCaller outlives its receive timeout and then tries to act.
type lateCaller struct {
	l    *imprint.Ledger
	late chan error
}

func (p *lateCaller) Name() string { return "late-caller" }

func (p *lateCaller) OnReceive(ctx context.Context, _ id.ID, editionID, _ uint64) error {
	<-ctx.Done()
	p.late <- p.l.ChangeURI(ctx, editionID, "late")
	return nil
}

func TestTimedOutHookCallsFailWithContextError(t *testing.T) {
	hook := &lateCaller{late: make(chan error, 1)}
	l := newLedger(t, imprint.WithPlugin(hook), imprint.WithHookTimeout(10*time.Millisecond))
	hook.l = l
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, err := l.Publish(as(author), 5, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := l.BuyBook(as(buyer), editionID, 1, types.USD(1)); !errors.Is(err, imprint.ErrHookRejected) {
		t.Fatalf("expected the timed out hook to reject the buy, got %v", err)
	}

	select {
	case err := <-hook.late:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("late call: expected context.Canceled, got %v", err)
		}
		if errors.Is(err, imprint.ErrReentrant) {
			t.Errorf("late call reported as reentrant: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hook never made its late call")
	}

	if custody(t, l, editionID) != 5 || balance(t, l, buyer, editionID) != 0 {
		t.Error("timed out buy changed balances")
	}
}

func TestConcurrentBuysNeverOversell(t *testing.T) {
	l := newLedger(t)
	author := id.NewAccountID()

	editionID, err := l.Publish(as(author), 50, 1, "u")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.BuyBook(as(id.NewAccountID()), editionID, 1, types.USD(1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, imprint.ErrNotEnoughSupply) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 50 {
		t.Errorf("expected exactly 50 successful buys, got %d", succeeded)
	}
	if got := custody(t, l, editionID); got != 0 {
		t.Errorf("expected custody 0, got %d", got)
	}
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

type kindRecorder struct {
	mu       sync.Mutex
	kinds    []event.Kind
	shutdown bool
	started  bool
}

func (r *kindRecorder) Name() string { return "kind-recorder" }

func (r *kindRecorder) record(evt *event.Event) error {
	r.mu.Lock()
	r.kinds = append(r.kinds, evt.Kind)
	r.mu.Unlock()
	return nil
}

func (r *kindRecorder) OnInit(context.Context, any) error {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

func (r *kindRecorder) OnShutdown(context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
	return nil
}

func (r *kindRecorder) OnPublished(_ context.Context, evt *event.Event) error { return r.record(evt) }
func (r *kindRecorder) OnBought(_ context.Context, evt *event.Event) error    { return r.record(evt) }
func (r *kindRecorder) OnSupplyIncreased(_ context.Context, evt *event.Event) error {
	return r.record(evt)
}
func (r *kindRecorder) OnPriceUpdated(_ context.Context, evt *event.Event) error {
	return r.record(evt)
}
func (r *kindRecorder) OnURIUpdated(_ context.Context, evt *event.Event) error { return r.record(evt) }

func TestNotificationsFollowCommits(t *testing.T) {
	rec := &kindRecorder{}
	l := newLedger(t, imprint.WithPlugin(rec))
	author, buyer := id.NewAccountID(), id.NewAccountID()

	editionID, _ := l.Publish(as(author), 5, 2, "u")
	_ = l.BuyBook(as(buyer), editionID, 1, types.USD(2))
	_ = l.BuyBook(as(buyer), editionID, 1, types.USD(3)) // rejected
	_ = l.IncreaseSupply(as(author), editionID, 1, 2, "u")
	_ = l.ChangePrice(as(buyer), editionID, 9) // rejected
	_ = l.ChangePrice(as(author), editionID, 9)
	_ = l.ChangeURI(as(author), editionID, "v")

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	want := []event.Kind{
		event.KindPublished,
		event.KindBought,
		event.KindSupplyIncreased,
		event.KindPriceUpdated,
		event.KindURIUpdated,
	}
	if fmt.Sprint(rec.kinds) != fmt.Sprint(want) {
		t.Errorf("expected notifications %v, got %v", want, rec.kinds)
	}
	if !rec.started || !rec.shutdown {
		t.Errorf("lifecycle hooks: started=%v shutdown=%v", rec.started, rec.shutdown)
	}
}

// ──────────────────────────────────────────────────
// Errors
// ──────────────────────────────────────────────────

func TestToServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		textCode string
	}{
		{"unpublished", imprint.ErrUnpublishedBook, http.StatusNotFound, imprint.CodeUnpublishedBook},
		{"not author", imprint.ErrNotAuthor, http.StatusForbidden, imprint.CodeNotAuthor},
		{"invalid price", imprint.ErrInvalidPrice, http.StatusBadRequest, imprint.CodeInvalidPrice},
		{"invalid amount", imprint.ErrInvalidAmount, http.StatusBadRequest, imprint.CodeInvalidAmount},
		{"not enough supply", &imprint.NotEnoughSupplyError{EditionID: 1, Requested: 5, Available: 2}, http.StatusConflict, imprint.CodeNotEnoughSupply},
		{"invalid payment", &imprint.InvalidPaymentError{EditionID: 1, Required: types.USD(6), Tendered: types.USD(5)}, http.StatusPaymentRequired, imprint.CodeInvalidPayment},
		{"reentrant", imprint.ErrReentrant, http.StatusConflict, imprint.CodeReentrant},
		{"no caller", imprint.ErrNoCaller, http.StatusUnauthorized, imprint.CodeNoCaller},
		{"custodian caller", imprint.ErrCustodianCaller, http.StatusForbidden, imprint.CodeCustodianCaller},
		{"hook", &imprint.HookError{Plugin: "p", Err: errors.New("no")}, http.StatusUnprocessableEntity, imprint.CodeHookRejected},
		{"wrapped", fmt.Errorf("outer: %w", imprint.ErrNotAuthor), http.StatusForbidden, imprint.CodeNotAuthor},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, imprint.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := imprint.ToServiceError(tt.err)
			if se == nil {
				t.Fatal("expected a service error")
			}
			if se.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, se.Code)
			}
			if se.TextCode != tt.textCode {
				t.Errorf("expected text code %s, got %s", tt.textCode, se.TextCode)
			}
		})
	}

	if imprint.ToServiceError(nil) != nil {
		t.Error("nil error must map to nil")
	}
}

func TestNotEnoughSupplyPayload(t *testing.T) {
	l := newLedger(t)
	editionID, _ := l.Publish(as(id.NewAccountID()), 2, 1, "u")

	err := l.BuyBook(as(id.NewAccountID()), editionID, 3, types.USD(3))
	var short *imprint.NotEnoughSupplyError
	if !errors.As(err, &short) {
		t.Fatalf("expected NotEnoughSupplyError, got %v", err)
	}
	if short.Available != 2 || short.Requested != 3 {
		t.Errorf("unexpected payload: %+v", short)
	}
	if !errors.Is(err, imprint.ErrNotEnoughSupply) || !imprint.IsRejection(err) {
		t.Error("NotEnoughSupplyError must match ErrNotEnoughSupply and be a rejection")
	}
	if md := imprint.ToServiceError(err).Metadata; md["available"] != uint64(2) {
		t.Errorf("expected available=2 in metadata, got %v", md["available"])
	}
}
