// Package holding defines non-custodial balances: units of an edition owned
// by a party after purchase.
package holding

import (
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/types"
)

// Holding is the number of units of one edition owned by one holder.
type Holding struct {
	types.Entity
	EditionID uint64 `json:"edition_id"`
	Holder    id.ID  `json:"holder"`
	Balance   uint64 `json:"balance"`
}
