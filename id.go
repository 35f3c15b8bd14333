package imprint

import "github.com/xraph/imprint/id"

// ID is the identifier type for accounts, events and receipts.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// NewAccount returns a fresh account identifier for an author or buyer.
var NewAccount = id.NewAccountID
