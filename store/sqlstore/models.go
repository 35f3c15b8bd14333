package sqlstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// Amounts are persisted as base-10 text so the full uint64 range survives
// both dialects.

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(column, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("imprint/sql: parse %s %q: %w", column, s, err)
	}
	return v, nil
}

// ==================== State model ====================

const stateRowID = 1

type stateModel struct {
	bun.BaseModel `bun:"table:imprint_state,alias:st"`

	ID            int64  `bun:"id,pk"`
	LastEditionID int64  `bun:"last_edition_id,notnull"`
	LastEventSeq  int64  `bun:"last_event_seq,notnull"`
	Retained      string `bun:"retained,notnull"`
	Currency      string `bun:"currency,notnull"`
	Custodian     string `bun:"custodian,notnull"`
}

func toStateModel(s store.State) *stateModel {
	return &stateModel{
		ID:            stateRowID,
		LastEditionID: int64(s.LastEditionID), //nolint:gosec // edition ids are sequential
		LastEventSeq:  int64(s.LastEventSeq),  //nolint:gosec // event seqs are sequential
		Retained:      formatAmount(s.Retained),
		Currency:      s.Currency,
		Custodian:     s.Custodian.String(),
	}
}

func fromStateModel(m *stateModel) (*store.State, error) {
	retained, err := parseAmount("retained", m.Retained)
	if err != nil {
		return nil, err
	}
	custodian, err := id.ParseOptional(m.Custodian)
	if err != nil {
		return nil, fmt.Errorf("imprint/sql: parse custodian: %w", err)
	}
	return &store.State{
		LastEditionID: uint64(m.LastEditionID), //nolint:gosec // never negative
		LastEventSeq:  uint64(m.LastEventSeq),  //nolint:gosec // never negative
		Retained:      retained,
		Currency:      m.Currency,
		Custodian:     custodian,
	}, nil
}

// ==================== Edition models ====================

type editionModel struct {
	bun.BaseModel `bun:"table:imprint_editions,alias:ed"`

	ID        int64     `bun:"id,pk"`
	Author    string    `bun:"author,notnull"`
	Price     string    `bun:"price,notnull"`
	URI       string    `bun:"uri,notnull"`
	Custody   string    `bun:"custody,notnull"`
	Minted    string    `bun:"minted,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func toEditionModel(e *edition.Edition) *editionModel {
	return &editionModel{
		ID:        int64(e.ID), //nolint:gosec // edition ids are sequential
		Author:    e.Author.String(),
		Price:     formatAmount(e.Price),
		URI:       e.URI,
		Custody:   formatAmount(e.Custody),
		Minted:    formatAmount(e.Minted),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromEditionModel(m *editionModel) (*edition.Edition, error) {
	author, err := id.ParseOptional(m.Author)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", m.Price)
	if err != nil {
		return nil, err
	}
	custody, err := parseAmount("custody", m.Custody)
	if err != nil {
		return nil, err
	}
	minted, err := parseAmount("minted", m.Minted)
	if err != nil {
		return nil, err
	}
	return &edition.Edition{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      uint64(m.ID), //nolint:gosec // never negative
		Author:  author,
		Price:   price,
		URI:     m.URI,
		Custody: custody,
		Minted:  minted,
	}, nil
}

// ==================== Holding models ====================

type holdingModel struct {
	bun.BaseModel `bun:"table:imprint_holdings,alias:ho"`

	Holder    string    `bun:"holder,pk"`
	EditionID int64     `bun:"edition_id,pk"`
	Balance   string    `bun:"balance,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func toHoldingModel(h *holding.Holding) *holdingModel {
	return &holdingModel{
		Holder:    h.Holder.String(),
		EditionID: int64(h.EditionID), //nolint:gosec // edition ids are sequential
		Balance:   formatAmount(h.Balance),
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

func fromHoldingModel(m *holdingModel) (*holding.Holding, error) {
	holder, err := id.ParseOptional(m.Holder)
	if err != nil {
		return nil, err
	}
	balance, err := parseAmount("balance", m.Balance)
	if err != nil {
		return nil, err
	}
	return &holding.Holding{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		EditionID: uint64(m.EditionID), //nolint:gosec // never negative
		Holder:    holder,
		Balance:   balance,
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	bun.BaseModel `bun:"table:imprint_events,alias:ev"`

	Seq       int64     `bun:"seq,pk"`
	ID        string    `bun:"id,notnull,unique"`
	Kind      string    `bun:"kind,notnull"`
	EditionID int64     `bun:"edition_id,notnull"`
	Actor     string    `bun:"actor,notnull"`
	Amount    string    `bun:"amount,notnull"`
	UnitPrice string    `bun:"unit_price,notnull"`
	Price     string    `bun:"price,notnull"`
	NewTotal  string    `bun:"new_total,notnull"`
	URI       string    `bun:"uri,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		Seq:       int64(e.Seq), //nolint:gosec // event seqs are sequential
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		EditionID: int64(e.EditionID), //nolint:gosec // edition ids are sequential
		Actor:     e.Actor.String(),
		Amount:    formatAmount(e.Amount),
		UnitPrice: formatAmount(e.UnitPrice),
		Price:     formatAmount(e.Price),
		NewTotal:  formatAmount(e.NewTotal),
		URI:       e.URI,
		CreatedAt: e.CreatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	actor, err := id.ParseOptional(m.Actor)
	if err != nil {
		return nil, err
	}
	e := &event.Event{
		ID:        evtID,
		Seq:       uint64(m.Seq), //nolint:gosec // never negative
		Kind:      event.Kind(m.Kind),
		EditionID: uint64(m.EditionID), //nolint:gosec // never negative
		Actor:     actor,
		URI:       m.URI,
		CreatedAt: m.CreatedAt,
	}
	if e.Amount, err = parseAmount("amount", m.Amount); err != nil {
		return nil, err
	}
	if e.UnitPrice, err = parseAmount("unit_price", m.UnitPrice); err != nil {
		return nil, err
	}
	if e.Price, err = parseAmount("price", m.Price); err != nil {
		return nil, err
	}
	if e.NewTotal, err = parseAmount("new_total", m.NewTotal); err != nil {
		return nil, err
	}
	return e, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	bun.BaseModel `bun:"table:imprint_receipts,alias:rc"`

	ID        string    `bun:"id,pk"`
	EditionID int64     `bun:"edition_id,notnull"`
	Buyer     string    `bun:"buyer,notnull"`
	Amount    string    `bun:"amount,notnull"`
	UnitPrice string    `bun:"unit_price,notnull"`
	Paid      string    `bun:"paid,notnull"`
	Currency  string    `bun:"currency,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func toReceiptModel(r *receipt.Receipt) *receiptModel {
	return &receiptModel{
		ID:        r.ID.String(),
		EditionID: int64(r.EditionID), //nolint:gosec // edition ids are sequential
		Buyer:     r.Buyer.String(),
		Amount:    formatAmount(r.Amount),
		UnitPrice: formatAmount(r.UnitPrice),
		Paid:      formatAmount(r.Paid.Amount),
		Currency:  r.Paid.Currency,
		CreatedAt: r.CreatedAt,
	}
}

func fromReceiptModel(m *receiptModel) (*receipt.Receipt, error) {
	rcptID, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}
	buyer, err := id.ParseOptional(m.Buyer)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	unitPrice, err := parseAmount("unit_price", m.UnitPrice)
	if err != nil {
		return nil, err
	}
	paid, err := parseAmount("paid", m.Paid)
	if err != nil {
		return nil, err
	}
	return &receipt.Receipt{
		ID:        rcptID,
		EditionID: uint64(m.EditionID), //nolint:gosec // never negative
		Buyer:     buyer,
		Amount:    amount,
		UnitPrice: unitPrice,
		Paid:      types.New(paid, m.Currency),
		CreatedAt: m.CreatedAt,
	}, nil
}
