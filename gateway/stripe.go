package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataOrderKey is the intent metadata key carrying the order code. It is
// set exactly once at intent creation and never mutated.
const metadataOrderKey = "orderId"

// Stripe implements Gateway against the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

func NewStripe(secretKey, webhookSecret string, timeout time.Duration) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{
		api:           api,
		webhookSecret: webhookSecret,
		timeout:       timeout,
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	if req.AmountMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.AmountMinorUnits)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountMinorUnits),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metadataOrderKey, req.OrderCode)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}

	method := "card"
	if len(pi.PaymentMethodTypes) > 0 {
		method = pi.PaymentMethodTypes[0]
	}

	raw, err := json.Marshal(pi)
	if err != nil {
		raw = nil
	}

	return &Intent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		Status:        string(pi.Status),
		PaymentMethod: method,
		Raw:           raw,
	}, nil
}

func (s *Stripe) CancelIntent(ctx context.Context, intentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := s.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return wrapStripeErr(err)
	}
	return nil
}

// VerifyWebhook checks the signature over the exact raw bytes and normalizes
// the event. It fails closed: any verification problem is ErrSignatureInvalid.
func (s *Stripe) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return eventFromStripe(event)
}

func eventFromStripe(event stripe.Event) (*Event, error) {
	out := &Event{
		ID:           event.ID,
		ProviderType: string(event.Type),
		Kind:         EventIgnored,
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		out.Kind = EventIntentSucceeded
	case "payment_intent.payment_failed":
		out.Kind = EventIntentFailed
	case "payment_intent.canceled":
		out.Kind = EventIntentCanceled
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent from event %s: %w", event.ID, err)
	}

	out.IntentID = pi.ID
	out.OrderCode = pi.Metadata[metadataOrderKey]
	out.Raw = event.Data.Raw

	// Settlement reference: the latest charge when present, the intent id
	// otherwise (the charge may not be expanded in the event payload).
	out.TransactionID = pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		out.TransactionID = pi.LatestCharge.ID
	}

	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		out.FailureReason = pi.LastPaymentError.Msg
	}

	return out, nil
}

func wrapStripeErr(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		class := ClassProviderInternal
		switch sErr.Type {
		case stripe.ErrorTypeCard:
			class = ClassCardDeclined
		case stripe.ErrorTypeInvalidRequest:
			class = ClassInvalidRequest
		}
		return &Error{Class: class, Message: sErr.Msg, Err: err}
	}
	return &Error{Class: ClassProviderInternal, Message: err.Error(), Err: err}
}
