package imprint

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/xraph/imprint/types"
)

// Sentinel errors for common failure scenarios.
var (
	// Authorization and settlement rejections. Each aborts the whole
	// operation with no state change and no notification.
	ErrUnpublishedBook = errors.New("imprint: edition is not published")
	ErrNotAuthor       = errors.New("imprint: caller is not the edition author")
	ErrInvalidPrice    = errors.New("imprint: price must be greater than zero")
	ErrInvalidAmount   = errors.New("imprint: amount overflows the maximum representable count")
	ErrNotEnoughSupply = errors.New("imprint: not enough custodial supply")
	ErrInvalidPayment  = errors.New("imprint: payment does not equal the required total")
	ErrReentrant       = errors.New("imprint: reentrant call")
	ErrCustodianCaller = errors.New("imprint: the custodian account cannot act as a caller")

	// Caller and lifecycle errors
	ErrNoCaller          = errors.New("imprint: no caller in context")
	ErrNotStarted        = errors.New("imprint: ledger not started")
	ErrHookRejected      = errors.New("imprint: receive hook rejected the transfer")
	ErrCurrencyMismatch  = errors.New("imprint: store currency differs from ledger currency")
	ErrCustodianMismatch = errors.New("imprint: store custodian differs from ledger custodian")

	// Store errors
	ErrEditionNotFound = errors.New("imprint: edition not found")
	ErrStoreClosed     = errors.New("imprint: store is closed")
	ErrCommitFailed    = errors.New("imprint: commit failed")
)

// Text codes attached to service errors.
const (
	CodeUnpublishedBook = "UNPUBLISHED_BOOK"
	CodeNotAuthor       = "NOT_AUTHOR"
	CodeInvalidPrice    = "INVALID_PRICE"
	CodeInvalidAmount   = "INVALID_AMOUNT"
	CodeNotEnoughSupply = "NOT_ENOUGH_SUPPLY"
	CodeInvalidPayment  = "INVALID_PAYMENT"
	CodeReentrant       = "REENTRANT"
	CodeNoCaller        = "NO_CALLER"
	CodeCustodianCaller = "CUSTODIAN_CALLER"
	CodeHookRejected    = "HOOK_REJECTED"
	CodeInternal        = "INTERNAL"
)

// NotEnoughSupplyError reports a purchase larger than the custodial supply.
type NotEnoughSupplyError struct {
	EditionID uint64
	Requested uint64
	Available uint64
}

func (e *NotEnoughSupplyError) Error() string {
	return fmt.Sprintf("imprint: edition %d: requested %d units, only %d available",
		e.EditionID, e.Requested, e.Available)
}

// Is matches ErrNotEnoughSupply.
func (e *NotEnoughSupplyError) Is(target error) bool { return target == ErrNotEnoughSupply }

// ToServiceError converts the error into a go-errors envelope.
func (e *NotEnoughSupplyError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(CodeNotEnoughSupply).
		WithMetadata(map[string]any{
			"edition_id": e.EditionID,
			"requested":  e.Requested,
			"available":  e.Available,
		})
}

// InvalidPaymentError reports a tendered payment that is not exactly the
// required total. Overpayment is rejected the same as underpayment.
type InvalidPaymentError struct {
	EditionID uint64
	Required  types.Money
	Tendered  types.Money
}

func (e *InvalidPaymentError) Error() string {
	return fmt.Sprintf("imprint: edition %d: payment %d %s does not equal required %d %s",
		e.EditionID, e.Tendered.Amount, e.Tendered.Currency, e.Required.Amount, e.Required.Currency)
}

// Is matches ErrInvalidPayment.
func (e *InvalidPaymentError) Is(target error) bool { return target == ErrInvalidPayment }

// ToServiceError converts the error into a go-errors envelope.
func (e *InvalidPaymentError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryValidation).
		WithCode(http.StatusPaymentRequired).
		WithTextCode(CodeInvalidPayment).
		WithMetadata(map[string]any{
			"edition_id": e.EditionID,
			"required":   e.Required.Amount,
			"tendered":   e.Tendered.Amount,
			"currency":   e.Required.Currency,
		})
}

// HookError wraps the error returned by a receive hook.
type HookError struct {
	Plugin string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("imprint: receive hook %q: %v", e.Plugin, e.Err)
}

// Unwrap exposes both ErrHookRejected and the hook's own error.
func (e *HookError) Unwrap() []error { return []error{ErrHookRejected, e.Err} }

// ToServiceError maps any error returned by the ledger to a go-errors
// envelope so hosts can surface it over HTTP. Unknown errors are internal.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var supply *NotEnoughSupplyError
	if errors.As(err, &supply) {
		return supply.ToServiceError()
	}
	var payment *InvalidPaymentError
	if errors.As(err, &payment) {
		return payment.ToServiceError()
	}

	switch {
	case errors.Is(err, ErrUnpublishedBook), errors.Is(err, ErrEditionNotFound):
		return goerrors.New(err.Error(), goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(CodeUnpublishedBook)
	case errors.Is(err, ErrNotAuthor):
		return goerrors.New(err.Error(), goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).
			WithTextCode(CodeNotAuthor)
	case errors.Is(err, ErrCustodianCaller):
		return goerrors.New(err.Error(), goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).
			WithTextCode(CodeCustodianCaller)
	case errors.Is(err, ErrNoCaller):
		return goerrors.New(err.Error(), goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(CodeNoCaller)
	case errors.Is(err, ErrInvalidPrice):
		return goerrors.New(err.Error(), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(CodeInvalidPrice)
	case errors.Is(err, ErrInvalidAmount):
		return goerrors.New(err.Error(), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(CodeInvalidAmount)
	case errors.Is(err, ErrReentrant):
		return goerrors.New(err.Error(), goerrors.CategoryConflict).
			WithCode(http.StatusConflict).
			WithTextCode(CodeReentrant)
	case errors.Is(err, ErrHookRejected):
		return goerrors.New(err.Error(), goerrors.CategoryOperation).
			WithCode(http.StatusUnprocessableEntity).
			WithTextCode(CodeHookRejected)
	default:
		return goerrors.New(err.Error(), goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(CodeInternal)
	}
}

// IsNotFound returns true if the error reports a missing or unpublished edition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEditionNotFound) ||
		errors.Is(err, ErrUnpublishedBook)
}

// IsRejection returns true if the operation was refused by the authorization
// guard, the settlement engine or the reentrance lock. Rejected operations
// never change state.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnpublishedBook) ||
		errors.Is(err, ErrNotAuthor) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNotEnoughSupply) ||
		errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrReentrant) ||
		errors.Is(err, ErrCustodianCaller) ||
		errors.Is(err, ErrHookRejected)
}

// IsRetryable returns true if the error is temporary and the caller may
// resubmit. The ledger itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCommitFailed) ||
		errors.Is(err, ErrNotStarted)
}
