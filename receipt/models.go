// Package receipt records settled purchases and the payment the ledger
// retained for each of them.
package receipt

import (
	"time"

	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/types"
)

// Receipt is written once per successful buy.
type Receipt struct {
	ID        id.ReceiptID `json:"id"`
	EditionID uint64       `json:"edition_id"`
	Buyer     id.ID        `json:"buyer"`
	Amount    uint64       `json:"amount"`
	UnitPrice uint64       `json:"unit_price"`
	Paid      types.Money  `json:"paid"`
	CreatedAt time.Time    `json:"created_at"`
}
