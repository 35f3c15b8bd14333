package receipt

import "context"

type Store interface {
	ListReceipts(ctx context.Context, opts ListOpts) ([]*Receipt, error)
}

type ListOpts struct {
	Buyer     string
	EditionID uint64
	Limit     int
	Offset    int
}
