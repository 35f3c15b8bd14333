package imprint

import (
	"math"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/types"
)

// check evaluates predicates in order and returns the first rejection.
// Callers list them as published, author, amount, price.
func check(preds ...func() error) error {
	for _, p := range preds {
		if err := p(); err != nil {
			return err
		}
	}
	return nil
}

func published(e *edition.Edition) func() error {
	return func() error {
		if !e.Published() {
			return ErrUnpublishedBook
		}
		return nil
	}
}

func authoredBy(e *edition.Edition, caller id.ID) func() error {
	return func() error {
		if !e.Author.Equal(caller) {
			return ErrNotAuthor
		}
		return nil
	}
}

// mintable rejects a supply increase that would overflow custody.
func mintable(e *edition.Edition, amount uint64) func() error {
	return func() error {
		if amount > math.MaxUint64-e.Custody {
			return ErrInvalidAmount
		}
		return nil
	}
}

func positivePrice(price uint64) func() error {
	return func() error {
		if price == 0 {
			return ErrInvalidPrice
		}
		return nil
	}
}

func inCustody(e *edition.Edition, amount uint64) func() error {
	return func() error {
		if e.Custody < amount {
			return &NotEnoughSupplyError{EditionID: e.ID, Requested: amount, Available: e.Custody}
		}
		return nil
	}
}

// creditable rejects a purchase that would overflow the buyer's balance.
func creditable(h *holding.Holding, amount uint64) func() error {
	return func() error {
		if amount > math.MaxUint64-h.Balance {
			return ErrInvalidAmount
		}
		return nil
	}
}

// exactPayment requires payment to equal price*amount in the ledger currency.
func exactPayment(e *edition.Edition, amount uint64, payment types.Money, currency string) func() error {
	return func() error {
		required, ok := types.New(e.Price, currency).CheckedMul(amount)
		if !ok {
			return ErrInvalidAmount
		}
		if !payment.Equal(required) {
			return &InvalidPaymentError{EditionID: e.ID, Required: required, Tendered: payment}
		}
		return nil
	}
}
