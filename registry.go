package imprint

import (
	"context"
	"math"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// ──────────────────────────────────────────────────
// Edition registry
// ──────────────────────────────────────────────────

// Publish creates a new edition authored by the caller, mints amount units
// into custody and returns the new edition id. Ids start at 1 and are never
// reused.
func (l *Ledger) Publish(ctx context.Context, amount, price uint64, uri string) (uint64, error) {
	ctx, caller, release, err := l.begin(ctx)
	defer release()
	if err != nil {
		return 0, err
	}

	if err := check(positivePrice(price)); err != nil {
		return 0, l.reject("publish", 0, err)
	}
	if l.lastEditionID == math.MaxUint64 {
		return 0, l.reject("publish", 0, ErrInvalidAmount)
	}

	e := &edition.Edition{
		Entity:  types.NewEntity(),
		ID:      l.lastEditionID + 1,
		Author:  caller,
		Price:   price,
		URI:     uri,
		Custody: amount,
		Minted:  amount,
	}

	evt := l.newEvent(event.KindPublished, e.ID, caller)
	evt.Price = price
	evt.Amount = amount
	evt.URI = uri

	if err := l.commit(ctx, &store.Batch{
		State:   l.state(e.ID, l.retained),
		Edition: e,
		Event:   evt,
	}); err != nil {
		return 0, err
	}

	l.logger.Info("edition published",
		"edition_id", e.ID,
		"author", caller.String(),
		"amount", amount,
		"price", price,
	)
	return e.ID, nil
}

// IncreaseSupply mints amount more units of an existing edition into
// custody and replaces its price and uri. Only the author may call it.
func (l *Ledger) IncreaseSupply(ctx context.Context, editionID, amount, price uint64, uri string) error {
	ctx, caller, release, err := l.begin(ctx)
	defer release()
	if err != nil {
		return err
	}

	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return err
	}
	if err := check(
		published(e),
		authoredBy(e, caller),
		mintable(e, amount),
		positivePrice(price),
	); err != nil {
		return l.reject("increase_supply", editionID, err)
	}

	next := e.Clone()
	next.Custody += amount
	next.Minted = saturatingAdd(next.Minted, amount)
	next.Price = price
	next.URI = uri
	next.Touch()

	evt := l.newEvent(event.KindSupplyIncreased, editionID, caller)
	evt.Amount = amount
	evt.NewTotal = next.Custody
	evt.Price = price
	evt.URI = uri

	return l.commit(ctx, &store.Batch{
		State:   l.state(l.lastEditionID, l.retained),
		Edition: next,
		Event:   evt,
	})
}

// Reissue re-publishes an existing edition id. Supply accumulates exactly as
// with IncreaseSupply; a different caller is refused with ErrNotAuthor.
func (l *Ledger) Reissue(ctx context.Context, editionID, amount, price uint64, uri string) error {
	return l.IncreaseSupply(ctx, editionID, amount, price, uri)
}

// ChangePrice sets a new unit price. Only the author may call it.
func (l *Ledger) ChangePrice(ctx context.Context, editionID, price uint64) error {
	ctx, caller, release, err := l.begin(ctx)
	defer release()
	if err != nil {
		return err
	}

	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return err
	}
	if err := check(
		published(e),
		authoredBy(e, caller),
		positivePrice(price),
	); err != nil {
		return l.reject("change_price", editionID, err)
	}

	next := e.Clone()
	next.Price = price
	next.Touch()

	evt := l.newEvent(event.KindPriceUpdated, editionID, caller)
	evt.Price = price

	return l.commit(ctx, &store.Batch{
		State:   l.state(l.lastEditionID, l.retained),
		Edition: next,
		Event:   evt,
	})
}

// ChangeURI sets a new metadata URI. Only the author may call it.
func (l *Ledger) ChangeURI(ctx context.Context, editionID uint64, uri string) error {
	ctx, caller, release, err := l.begin(ctx)
	defer release()
	if err != nil {
		return err
	}

	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return err
	}
	if err := check(
		published(e),
		authoredBy(e, caller),
	); err != nil {
		return l.reject("change_uri", editionID, err)
	}

	next := e.Clone()
	next.URI = uri
	next.Touch()

	evt := l.newEvent(event.KindURIUpdated, editionID, caller)
	evt.URI = uri

	return l.commit(ctx, &store.Batch{
		State:   l.state(l.lastEditionID, l.retained),
		Edition: next,
		Event:   evt,
	})
}

// saturatingAdd caps at math.MaxUint64. Minted is informational: once the
// units ever minted pass the range it stays at the cap, and conservation is
// checked against the event log instead.
func saturatingAdd(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
