package holding

import (
	"context"

	"github.com/xraph/imprint/id"
)

type Store interface {
	// GetHolding returns a zero-balance Holding when the holder owns nothing.
	GetHolding(ctx context.Context, holder id.ID, editionID uint64) (*Holding, error)
	ListHoldings(ctx context.Context, opts ListOpts) ([]*Holding, error)
}

type ListOpts struct {
	Holder    string
	EditionID uint64
	Limit     int
	Offset    int
}
