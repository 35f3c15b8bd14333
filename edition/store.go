package edition

import "context"

type Store interface {
	GetEdition(ctx context.Context, editionID uint64) (*Edition, error)
	ListEditions(ctx context.Context, opts ListOpts) ([]*Edition, error)
}

type ListOpts struct {
	Author string
	Limit  int
	Offset int
}
