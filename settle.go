package imprint

import (
	"context"
	"math"
	"time"

	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// BuyBook sells amount units of an edition from custody to the caller.
// payment must equal the unit price times amount, in the ledger currency.
// The payment is retained by the ledger, the caller's holding is credited
// and custody is debited by exactly amount, all in one commit. Receive hooks
// run before the commit and can abort the purchase.
func (l *Ledger) BuyBook(ctx context.Context, editionID, amount uint64, payment types.Money) error {
	ctx, buyer, release, err := l.begin(ctx)
	defer release()
	if err != nil {
		return err
	}

	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return err
	}
	h, err := l.store.GetHolding(ctx, buyer, editionID)
	if err != nil {
		return err
	}

	if err := check(
		published(e),
		inCustody(e, amount),
		exactPayment(e, amount, payment, l.currency),
		creditable(h, amount),
	); err != nil {
		return l.reject("buy", editionID, err)
	}
	if payment.Amount > math.MaxUint64-l.retained {
		return l.reject("buy", editionID, ErrInvalidAmount)
	}

	if name, err := l.plugins.Receive(ctx, buyer, editionID, amount); err != nil {
		l.logger.Warn("receive hook rejected purchase",
			"plugin", name,
			"edition_id", editionID,
			"buyer", buyer.String(),
			"error", err,
		)
		return &HookError{Plugin: name, Err: err}
	}

	now := time.Now().UTC()

	next := e.Clone()
	next.Custody -= amount
	next.Touch()

	credited := *h
	if credited.CreatedAt.IsZero() {
		credited.Entity = types.NewEntity()
	} else {
		credited.Touch()
	}
	credited.EditionID = editionID
	credited.Holder = buyer
	credited.Balance += amount

	rcpt := &receipt.Receipt{
		ID:        id.NewReceiptID(),
		EditionID: editionID,
		Buyer:     buyer,
		Amount:    amount,
		UnitPrice: e.Price,
		Paid:      types.New(payment.Amount, l.currency),
		CreatedAt: now,
	}

	evt := l.newEvent(event.KindBought, editionID, buyer)
	evt.Amount = amount
	evt.UnitPrice = e.Price
	evt.CreatedAt = now

	return l.commit(ctx, &store.Batch{
		State:   l.state(l.lastEditionID, l.retained+payment.Amount),
		Edition: next,
		Holding: &credited,
		Receipt: rcpt,
		Event:   evt,
	})
}
