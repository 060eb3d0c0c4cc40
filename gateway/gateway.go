package gateway

import (
	"context"
	"errors"
)

var (
	// ErrInvalidAmount rejects intent amounts that are not positive integer
	// minor units.
	ErrInvalidAmount = errors.New("invalid intent amount")

	// ErrSignatureInvalid means a webhook payload failed verification. The
	// payload must not be trusted and the provider may retry.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

type ErrorClass string

const (
	ClassInvalidRequest   ErrorClass = "invalid_request"
	ClassCardDeclined     ErrorClass = "card_declined"
	ClassProviderInternal ErrorClass = "provider_internal"
)

// Error wraps a provider failure with its provider-declared class.
type Error struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *Error) Error() string {
	return "gateway: " + string(e.Class) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// CreateIntentRequest carries the amount in integer minor units (cents).
// OrderCode is written into intent metadata and is the sole linkage by which
// a later webhook is matched back to the order. IdempotencyKey makes a retry
// after an ambiguous timeout safe: the provider returns the original intent
// instead of creating a second one.
type CreateIntentRequest struct {
	AmountMinorUnits int64
	Currency         string
	OrderCode        string
	Description      string
	Metadata         map[string]string
	IdempotencyKey   string
}

// Intent is the provider-side representation of a pending charge.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	PaymentMethod string
	Raw           []byte // full provider response snapshot
}

type EventKind string

const (
	EventIntentSucceeded EventKind = "intent_succeeded"
	EventIntentFailed    EventKind = "intent_payment_failed"
	EventIntentCanceled  EventKind = "intent_canceled"
	EventIgnored         EventKind = "ignored"
)

// Event is a verified, normalized provider webhook event.
type Event struct {
	ID            string
	Kind          EventKind
	ProviderType  string // the provider's own event type string
	IntentID      string
	OrderCode     string // from intent metadata; empty when absent
	TransactionID string
	FailureReason string
	Raw           []byte
}

// Gateway is the capability surface the reconciler needs from the payment
// provider. Implementations own their retry/backoff policy; callers see a
// single fallible call per operation.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	VerifyWebhook(payload []byte, sigHeader string) (*Event, error)
}
