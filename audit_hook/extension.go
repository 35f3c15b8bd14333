// Package audithook bridges imprint ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnInit            = (*Extension)(nil)
	_ plugin.OnShutdown        = (*Extension)(nil)
	_ plugin.OnPublished       = (*Extension)(nil)
	_ plugin.OnBought          = (*Extension)(nil)
	_ plugin.OnSupplyIncreased = (*Extension)(nil)
	_ plugin.OnPriceUpdated    = (*Extension)(nil)
	_ plugin.OnURIUpdated      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ any) error {
	return e.record(ctx, ActionLedgerStarted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", "", CategoryLifecycle, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionLedgerStopped, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", "", CategoryLifecycle, nil,
	)
}

// ──────────────────────────────────────────────────
// Edition hooks
// ──────────────────────────────────────────────────

// OnPublished implements plugin.OnPublished.
func (e *Extension) OnPublished(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionEditionPublished, SeverityInfo, OutcomeSuccess,
		ResourceEdition, editionRef(evt), evt.Actor.String(), CategoryCatalog, nil,
		"seq", evt.Seq,
		"amount", evt.Amount,
		"price", evt.Price,
		"uri", evt.URI,
	)
}

// OnSupplyIncreased implements plugin.OnSupplyIncreased.
func (e *Extension) OnSupplyIncreased(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionSupplyIncreased, SeverityInfo, OutcomeSuccess,
		ResourceEdition, editionRef(evt), evt.Actor.String(), CategoryCatalog, nil,
		"seq", evt.Seq,
		"amount", evt.Amount,
		"new_total", evt.NewTotal,
	)
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (e *Extension) OnPriceUpdated(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionPriceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceEdition, editionRef(evt), evt.Actor.String(), CategoryCatalog, nil,
		"seq", evt.Seq,
		"price", evt.Price,
	)
}

// OnURIUpdated implements plugin.OnURIUpdated.
func (e *Extension) OnURIUpdated(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionURIUpdated, SeverityInfo, OutcomeSuccess,
		ResourceEdition, editionRef(evt), evt.Actor.String(), CategoryCatalog, nil,
		"seq", evt.Seq,
		"uri", evt.URI,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnBought implements plugin.OnBought.
func (e *Extension) OnBought(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionEditionBought, SeverityInfo, OutcomeSuccess,
		ResourceEdition, editionRef(evt), evt.Actor.String(), CategoryPayment, nil,
		"seq", evt.Seq,
		"amount", evt.Amount,
		"unit_price", evt.UnitPrice,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func editionRef(evt *event.Event) string {
	return strconv.FormatUint(evt.EditionID, 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, actor, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
