// Package event defines the append-only notification log. Exactly one Event
// is committed with every successful mutating ledger call.
package event

import (
	"time"

	"github.com/xraph/imprint/id"
)

// Kind names the state change an Event reports.
type Kind string

const (
	KindPublished       Kind = "published"
	KindBought          Kind = "bought"
	KindSupplyIncreased Kind = "supply_increased"
	KindPriceUpdated    Kind = "price_updated"
	KindURIUpdated      Kind = "uri_updated"
)

// Event is an immutable notification. Which payload fields are set depends on
// Kind:
//
//	published         Actor (author), Price
//	bought            Actor (buyer), Amount, UnitPrice
//	supply_increased  Amount (added), NewTotal (custodial supply after)
//	price_updated     Price
//	uri_updated       URI
type Event struct {
	ID        id.EventID `json:"id"`
	Seq       uint64     `json:"seq"`
	Kind      Kind       `json:"kind"`
	EditionID uint64     `json:"edition_id"`
	Actor     id.ID      `json:"actor"`
	Amount    uint64     `json:"amount,omitempty"`
	UnitPrice uint64     `json:"unit_price,omitempty"`
	Price     uint64     `json:"price,omitempty"`
	NewTotal  uint64     `json:"new_total,omitempty"`
	URI       string     `json:"uri,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
