package mongo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// BSON has no unsigned 64-bit integer, so amounts are stored as base-10
// strings. Edition ids and event sequence numbers are sequential and fit
// in int64.

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("imprint/mongo: parse %s %q: %w", field, s, err)
	}
	return v, nil
}

// ==================== State models ====================

const stateDocID = "state"

type stateModel struct {
	ID            string `bson:"_id"`
	LastEditionID int64  `bson:"last_edition_id"`
	LastEventSeq  int64  `bson:"last_event_seq"`
	Retained      string `bson:"retained"`
	Currency      string `bson:"currency"`
	Custodian     string `bson:"custodian"`
}

func toStateModel(s store.State) *stateModel {
	return &stateModel{
		ID:            stateDocID,
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
		return nil, fmt.Errorf("imprint/mongo: parse custodian: %w", err)
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
	ID        int64     `bson:"_id"`
	Author    string    `bson:"author"`
	Price     string    `bson:"price"`
	URI       string    `bson:"uri"`
	Custody   string    `bson:"custody"`
	Minted    string    `bson:"minted"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
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
		return nil, fmt.Errorf("imprint/mongo: parse author: %w", err)
	}
	e := &edition.Edition{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:     uint64(m.ID), //nolint:gosec // never negative
		Author: author,
		URI:    m.URI,
	}
	if e.Price, err = parseAmount("price", m.Price); err != nil {
		return nil, err
	}
	if e.Custody, err = parseAmount("custody", m.Custody); err != nil {
		return nil, err
	}
	if e.Minted, err = parseAmount("minted", m.Minted); err != nil {
		return nil, err
	}
	return e, nil
}

// ==================== Holding models ====================

type holdingModel struct {
	ID        string    `bson:"_id"`
	Holder    string    `bson:"holder"`
	EditionID int64     `bson:"edition_id"`
	Balance   string    `bson:"balance"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func holdingDocID(holder id.ID, editionID uint64) string {
	return fmt.Sprintf("%s/%d", holder.String(), editionID)
}

func toHoldingModel(h *holding.Holding) *holdingModel {
	return &holdingModel{
		ID:        holdingDocID(h.Holder, h.EditionID),
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
		return nil, fmt.Errorf("imprint/mongo: parse holder: %w", err)
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
	Seq       int64     `bson:"_id"`
	ID        string    `bson:"event_id"`
	Kind      string    `bson:"kind"`
	EditionID int64     `bson:"edition_id"`
	Actor     string    `bson:"actor"`
	Amount    string    `bson:"amount"`
	UnitPrice string    `bson:"unit_price"`
	Price     string    `bson:"price"`
	NewTotal  string    `bson:"new_total"`
	URI       string    `bson:"uri,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
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
		return nil, fmt.Errorf("imprint/mongo: parse event id: %w", err)
	}
	actor, err := id.ParseOptional(m.Actor)
	if err != nil {
		return nil, fmt.Errorf("imprint/mongo: parse actor: %w", err)
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
	ID        string    `bson:"_id"`
	EditionID int64     `bson:"edition_id"`
	Buyer     string    `bson:"buyer"`
	Amount    string    `bson:"amount"`
	UnitPrice string    `bson:"unit_price"`
	Paid      string    `bson:"paid"`
	Currency  string    `bson:"currency"`
	CreatedAt time.Time `bson:"created_at"`
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
		return nil, fmt.Errorf("imprint/mongo: parse receipt id: %w", err)
	}
	buyer, err := id.ParseOptional(m.Buyer)
	if err != nil {
		return nil, fmt.Errorf("imprint/mongo: parse buyer: %w", err)
	}
	r := &receipt.Receipt{
		ID:        rcptID,
		EditionID: uint64(m.EditionID), //nolint:gosec // never negative
		Buyer:     buyer,
		CreatedAt: m.CreatedAt,
	}
	if r.Amount, err = parseAmount("amount", m.Amount); err != nil {
		return nil, err
	}
	if r.UnitPrice, err = parseAmount("unit_price", m.UnitPrice); err != nil {
		return nil, err
	}
	paid, err := parseAmount("paid", m.Paid)
	if err != nil {
		return nil, err
	}
	r.Paid = types.New(paid, m.Currency)
	return r, nil
}
