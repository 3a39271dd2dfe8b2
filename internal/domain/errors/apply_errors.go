package errors

import (
	"errors"
	"fmt"
)

// ErrAlreadyApplied signals the idempotency short-circuit: the event's state
// transition has already happened. Not a failure; callers respond 200.
var ErrAlreadyApplied = errors.New("event already applied")

// Apply error codes.
const (
	CodeMissingReference     = "missing_reference"
	CodeOrderNotFound        = "order_not_found"
	CodeSubscriptionNotFound = "subscription_not_found"
	CodeAmountMismatch       = "amount_mismatch"
	CodeMalformedPayload     = "malformed_payload"
	CodeStoreUnavailable     = "store_unavailable"
)

// ApplyError describes why an event could not be applied. Retryable errors
// map to HTTP 500 so the processor redelivers; the rest map to 400 because
// retrying will not fix a data problem.
type ApplyError struct {
	Code      string
	Retryable bool
	EventID   string
	message   string
	err       error
}

func (e *ApplyError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.message, e.err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.message)
}

func (e *ApplyError) Unwrap() error {
	return e.err
}

// NewMissingReference reports an event whose metadata carries no order ref.
func NewMissingReference(eventID string) *ApplyError {
	return &ApplyError{
		Code:    CodeMissingReference,
		EventID: eventID,
		message: "event metadata has no order reference",
	}
}

// NewOrderNotFound reports a reference with no matching order. Retryable:
// webhook delivery can race the checkout transaction that writes the order,
// and the processor's retry schedule absorbs the race.
func NewOrderNotFound(eventID, orderRef string) *ApplyError {
	return &ApplyError{
		Code:      CodeOrderNotFound,
		Retryable: true,
		EventID:   eventID,
		message:   fmt.Sprintf("no order for reference %q", orderRef),
	}
}

// NewSubscriptionNotFound mirrors NewOrderNotFound for subscription events.
func NewSubscriptionNotFound(eventID, subscriptionID string) *ApplyError {
	return &ApplyError{
		Code:      CodeSubscriptionNotFound,
		Retryable: true,
		EventID:   eventID,
		message:   fmt.Sprintf("no subscription for provider id %q", subscriptionID),
	}
}

// NewAmountMismatch reports a paid amount that does not equal the order
// total. Treated as a fraud/bug signal; never accepted, never retried.
func NewAmountMismatch(eventID, orderRef string, expected, got int64) *ApplyError {
	return &ApplyError{
		Code:    CodeAmountMismatch,
		EventID: eventID,
		message: fmt.Sprintf("order %q expects %d minor units, event carries %d", orderRef, expected, got),
	}
}

// NewMalformedPayload reports an event body that does not parse into the
// expected object for its type.
func NewMalformedPayload(eventID string, err error) *ApplyError {
	return &ApplyError{
		Code:    CodeMalformedPayload,
		EventID: eventID,
		message: "event payload does not match its type",
		err:     err,
	}
}

// NewStoreUnavailable wraps a transient store failure. Retryable.
func NewStoreUnavailable(eventID string, err error) *ApplyError {
	return &ApplyError{
		Code:      CodeStoreUnavailable,
		Retryable: true,
		EventID:   eventID,
		message:   "store operation failed",
		err:       err,
	}
}

// IsRetryable reports whether the error should surface as HTTP 500 so the
// processor redelivers. Unknown errors default to retryable.
func IsRetryable(err error) bool {
	var applyErr *ApplyError
	if errors.As(err, &applyErr) {
		return applyErr.Retryable
	}
	return true
}
