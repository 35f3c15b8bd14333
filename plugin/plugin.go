// Package plugin provides an extensible plugin system for imprint.
// Plugins hook into ledger lifecycle events and committed notifications, and
// buyer-side receive hooks can veto a purchase before it settles.
package plugin

import (
	"context"

	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/id"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Notification hooks (after commit)
// ──────────────────────────────────────────────────

// OnPublished is called after an edition is published.
type OnPublished interface {
	Plugin
	OnPublished(ctx context.Context, evt *event.Event) error
}

// OnBought is called after a purchase settles.
type OnBought interface {
	Plugin
	OnBought(ctx context.Context, evt *event.Event) error
}

// OnSupplyIncreased is called after units are minted into custody.
type OnSupplyIncreased interface {
	Plugin
	OnSupplyIncreased(ctx context.Context, evt *event.Event) error
}

// OnPriceUpdated is called after an author changes the unit price.
type OnPriceUpdated interface {
	Plugin
	OnPriceUpdated(ctx context.Context, evt *event.Event) error
}

// OnURIUpdated is called after an author changes the metadata URI.
type OnURIUpdated interface {
	Plugin
	OnURIUpdated(ctx context.Context, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Settlement hooks (before commit)
// ──────────────────────────────────────────────────

// OnReceive is called while a purchase is being settled, before anything is
// committed. Returning an error aborts the purchase. The context derives from
// the one the ledger operation runs under: any mutating ledger call made with
// it is refused as reentrant, and it is cancelled when the hook times out, after
// which such calls fail with the context's error.
type OnReceive interface {
	Plugin
	OnReceive(ctx context.Context, buyer id.ID, editionID, amount uint64) error
}
