package audithook

// Action constants for audit events.
const (
	// Edition actions
	ActionEditionPublished = "edition.published"
	ActionSupplyIncreased  = "edition.supply_increased"
	ActionPriceUpdated     = "edition.price_updated"
	ActionURIUpdated       = "edition.uri_updated"

	// Settlement actions
	ActionEditionBought = "edition.bought"

	// Ledger actions
	ActionLedgerStarted = "ledger.started"
	ActionLedgerStopped = "ledger.stopped"
)

// Resource constants for audit events.
const (
	ResourceEdition = "edition"
	ResourceLedger  = "ledger"
)

// Category constants for audit events.
const (
	CategoryCatalog   = "catalog"
	CategoryPayment   = "payment"
	CategoryLifecycle = "lifecycle"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
