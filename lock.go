package imprint

import (
	"context"
	"sync"
	"sync/atomic"
)

type lockKey struct{}

// reentrancyLock is the single-flag guard wrapped around every mutating
// operation. The context handed to the operation body (and from there to
// hooks and plugins) is marked with the lock; a mutating call arriving with a
// marked context is a nested call from the same chain and is refused.
// Unmarked callers queue on mu, one operation at a time.
type reentrancyLock struct {
	mu      sync.Mutex
	entered atomic.Bool
}

// acquire sets the flag and returns the marked context and a release func
// that must run on every exit path. A context that is already done fails with
// its own error.
func (g *reentrancyLock) acquire(ctx context.Context) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, err
	}
	if held, ok := ctx.Value(lockKey{}).(*reentrancyLock); ok && held == g {
		return ctx, func() {}, ErrReentrant
	}

	g.mu.Lock()
	g.entered.Store(true)

	release := func() {
		g.entered.Store(false)
		g.mu.Unlock()
	}
	return context.WithValue(ctx, lockKey{}, g), release, nil
}

// held reports whether an operation is in progress.
func (g *reentrancyLock) held() bool {
	return g.entered.Load()
}
