// Package edition defines the edition record: the unit of identity, authorship
// and custodial supply in the ledger.
package edition

import (
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/types"
)

// Edition is a published, uniquely identified fungible item type.
// An Edition with a Nil Author has never been published.
type Edition struct {
	types.Entity
	ID      uint64 `json:"id"`
	Author  id.ID  `json:"author"`
	Price   uint64 `json:"price"`
	URI     string `json:"uri"`
	Custody uint64 `json:"custody"`
	Minted  uint64 `json:"minted"`
}

// Published reports whether the edition has an author.
func (e *Edition) Published() bool {
	return e != nil && !e.Author.IsNil()
}

// Sold returns the number of units that have left custody.
func (e *Edition) Sold() uint64 {
	return e.Minted - e.Custody
}

// Clone returns a copy that can be staged without touching e.
func (e *Edition) Clone() *Edition {
	c := *e
	return &c
}
