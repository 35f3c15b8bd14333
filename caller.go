package imprint

import (
	"context"

	"github.com/xraph/imprint/id"
)

type callerKey struct{}

// WithCaller returns a context carrying the identity of the principal
// performing ledger operations.
func WithCaller(ctx context.Context, caller id.ID) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom extracts the caller set by WithCaller.
func CallerFrom(ctx context.Context) (id.ID, bool) {
	caller, ok := ctx.Value(callerKey{}).(id.ID)
	if !ok || caller.IsNil() {
		return id.Nil, false
	}
	return caller, true
}

func requireCaller(ctx context.Context) (id.ID, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return id.Nil, ErrNoCaller
	}
	return caller, nil
}
