package imprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/plugin"
	"github.com/xraph/imprint/receipt"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/types"
)

// DefaultCurrency is the settlement currency used when none is configured.
const DefaultCurrency = "usd"

// Ledger is the custodial edition ledger.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Configuration
	currency     string
	custodian    id.ID
	custodianSet bool // chosen by WithCustodian rather than generated
	hookTimeout  time.Duration
	skipMigrate  bool

	lock    reentrancyLock
	started atomic.Bool

	// Registry counters, loaded from the store at Start and only
	// written while the lock is held.
	lastEditionID uint64
	lastEventSeq  uint64
	retained      uint64
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		currency:    DefaultCurrency,
		hookTimeout: plugin.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.custodian.IsNil() {
		l.custodian = id.NewAccountID()
	}
	l.plugins.WithTimeout(l.hookTimeout)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCurrency sets the settlement currency. Prices are denominated in its
// smallest unit and every payment must be tendered in it.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = strings.ToLower(currency)
		}
	}
}

// WithCustodian sets the account that represents the ledger itself.
// CustodyBalanceOf reports custodial supply for this account.
func WithCustodian(custodian id.ID) Option {
	return func(l *Ledger) {
		l.custodian = custodian
		l.custodianSet = !custodian.IsNil()
	}
}

// WithHookTimeout bounds each plugin and receive hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.hookTimeout = d
		}
	}
}

// WithoutMigrate skips store migration at Start. The schema must already
// exist.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Start migrates the store and loads the registry counters.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	st, err := l.store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("imprint: load state: %w", err)
	}
	if st.Currency != "" && st.Currency != l.currency {
		return fmt.Errorf("%w: store has %q, ledger configured for %q",
			ErrCurrencyMismatch, st.Currency, l.currency)
	}
	if !st.Custodian.IsNil() {
		if l.custodianSet && !st.Custodian.Equal(l.custodian) {
			return fmt.Errorf("%w: store has %s, ledger configured for %s",
				ErrCustodianMismatch, st.Custodian, l.custodian)
		}
		l.custodian = st.Custodian
	}

	l.lock.mu.Lock()
	l.lastEditionID = st.LastEditionID
	l.lastEventSeq = st.LastEventSeq
	l.retained = st.Retained
	l.lock.mu.Unlock()

	l.started.Store(true)
	l.plugins.EmitInit(ctx, l)

	l.logger.Info("imprint started",
		"currency", l.currency,
		"custodian", l.custodian.String(),
		"editions", st.LastEditionID,
		"events", st.LastEventSeq,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Ledger and closes its store.
func (l *Ledger) Stop() error {
	if !l.started.Swap(false) {
		return l.store.Close()
	}

	// Wait for any in-flight operation.
	l.lock.mu.Lock()
	defer l.lock.mu.Unlock()

	l.plugins.EmitShutdown(context.Background())
	l.logger.Info("imprint stopped")

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store {
	return l.store
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry {
	return l.plugins
}

// Currency returns the settlement currency.
func (l *Ledger) Currency() string {
	return l.currency
}

// Custodian returns the account that represents the ledger's own custody.
func (l *Ledger) Custodian() id.ID {
	return l.custodian
}

// Supports reports whether the ledger implements the capability.
func (l *Ledger) Supports(c Capability) bool {
	return Supports(c)
}

// Busy reports whether a mutating operation is in progress.
func (l *Ledger) Busy() bool {
	return l.lock.held()
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// loadEdition returns the stored edition, or an unpublished placeholder
// carrying editionID when the store has none.
func (l *Ledger) loadEdition(ctx context.Context, editionID uint64) (*edition.Edition, error) {
	e, err := l.store.GetEdition(ctx, editionID)
	if errors.Is(err, ErrEditionNotFound) {
		return &edition.Edition{ID: editionID}, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AuthorOf returns the edition's author, or id.Nil if it was never published.
func (l *Ledger) AuthorOf(ctx context.Context, editionID uint64) (id.ID, error) {
	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return id.Nil, err
	}
	return e.Author, nil
}

// PriceOf returns the unit price in the ledger currency. Unpublished editions
// are priced at zero.
func (l *Ledger) PriceOf(ctx context.Context, editionID uint64) (types.Money, error) {
	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return types.Zero(l.currency), err
	}
	return types.New(e.Price, l.currency), nil
}

// URIOf returns the edition's metadata URI.
func (l *Ledger) URIOf(ctx context.Context, editionID uint64) (string, error) {
	e, err := l.loadEdition(ctx, editionID)
	if err != nil {
		return "", err
	}
	return e.URI, nil
}

// CustodyBalanceOf returns holder's balance of an edition. For the ledger's
// custodian this is the custodial supply still available for sale.
func (l *Ledger) CustodyBalanceOf(ctx context.Context, holder id.ID, editionID uint64) (uint64, error) {
	if holder.Equal(l.custodian) {
		e, err := l.loadEdition(ctx, editionID)
		if err != nil {
			return 0, err
		}
		return e.Custody, nil
	}

	h, err := l.store.GetHolding(ctx, holder, editionID)
	if err != nil {
		return 0, err
	}
	return h.Balance, nil
}

// Edition returns the full edition record. Unlike the accessors above it
// reports ErrEditionNotFound for ids that were never published.
func (l *Ledger) Edition(ctx context.Context, editionID uint64) (*edition.Edition, error) {
	return l.store.GetEdition(ctx, editionID)
}

// Editions lists published editions ordered by id.
func (l *Ledger) Editions(ctx context.Context, opts edition.ListOpts) ([]*edition.Edition, error) {
	return l.store.ListEditions(ctx, opts)
}

// Holdings lists non-custodial balances.
func (l *Ledger) Holdings(ctx context.Context, opts holding.ListOpts) ([]*holding.Holding, error) {
	return l.store.ListHoldings(ctx, opts)
}

// Events lists committed notifications in sequence order.
func (l *Ledger) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return l.store.ListEvents(ctx, opts)
}

// Receipts lists settled purchases.
func (l *Ledger) Receipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	return l.store.ListReceipts(ctx, opts)
}

// Retained returns the total payment retained by the ledger across all buys.
func (l *Ledger) Retained(ctx context.Context) (types.Money, error) {
	st, err := l.store.GetState(ctx)
	if err != nil {
		return types.Zero(l.currency), err
	}
	return types.New(st.Retained, l.currency), nil
}

// ──────────────────────────────────────────────────
// Commit plumbing
// ──────────────────────────────────────────────────

// begin enters the reentrance lock and resolves the caller. The returned
// context is marked and must be used for the rest of the operation.
func (l *Ledger) begin(ctx context.Context) (context.Context, id.ID, func(), error) {
	ctx, release, err := l.lock.acquire(ctx)
	if err != nil {
		return ctx, id.Nil, release, err
	}
	if !l.started.Load() {
		return ctx, id.Nil, release, ErrNotStarted
	}
	caller, err := requireCaller(ctx)
	if err != nil {
		return ctx, id.Nil, release, err
	}
	if caller.Equal(l.custodian) {
		return ctx, id.Nil, release, ErrCustodianCaller
	}
	return ctx, caller, release, nil
}

// newEvent stamps the next sequence number without consuming it.
func (l *Ledger) newEvent(kind event.Kind, editionID uint64, actor id.ID) *event.Event {
	return &event.Event{
		ID:        id.NewEventID(),
		Seq:       l.lastEventSeq + 1,
		Kind:      kind,
		EditionID: editionID,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
}

// state returns the ledger state as it will be after b commits.
func (l *Ledger) state(lastEditionID, retained uint64) store.State {
	return store.State{
		LastEditionID: lastEditionID,
		LastEventSeq:  l.lastEventSeq + 1,
		Retained:      retained,
		Currency:      l.currency,
		Custodian:     l.custodian,
	}
}

// commit applies the batch and, only on success, advances the in-memory
// counters and notifies plugins.
func (l *Ledger) commit(ctx context.Context, b *store.Batch) error {
	if err := l.store.Commit(ctx, b); err != nil {
		l.logger.Error("imprint commit failed",
			"kind", string(b.Event.Kind),
			"edition_id", b.Event.EditionID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	l.lastEditionID = b.State.LastEditionID
	l.lastEventSeq = b.State.LastEventSeq
	l.retained = b.State.Retained

	l.logger.Debug("imprint committed",
		"kind", string(b.Event.Kind),
		"edition_id", b.Event.EditionID,
		"seq", b.Event.Seq,
	)

	l.plugins.Emit(ctx, b.Event)
	return nil
}

// reject logs a refused operation and returns err unchanged.
func (l *Ledger) reject(op string, editionID uint64, err error) error {
	l.logger.Debug("imprint rejected",
		"op", op,
		"edition_id", editionID,
		"error", err,
	)
	return err
}
