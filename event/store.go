package event

import "context"

type Store interface {
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}

// ListOpts filters the log. Results are ordered by Seq ascending.
type ListOpts struct {
	EditionID uint64
	Kind      Kind
	AfterSeq  uint64
	Limit     int
}
