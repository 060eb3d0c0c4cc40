package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"checkout-service/gateway"
	"checkout-service/ledger"
	"checkout-service/models"
	"checkout-service/pricing"
)

// ErrPaymentRecord means the gateway intent was created but the local
// payment row could not be written; the intent is cancelled before this
// error surfaces so the provider side holds no orphan.
var ErrPaymentRecord = errors.New("payment record creation failed")

// OrderLedger is the slice of the order ledger the reconciler drives. It is
// the only component allowed to change order status after creation.
type OrderLedger interface {
	ResolveProfile(ctx context.Context, userID int) (int, error)
	CreateOrder(ctx context.Context, profileID int, items []models.OrderItem, totals *pricing.Totals, data models.CheckoutData, additionalInfo, currency string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, code string, fromExpected *models.OrderStatus, to models.OrderStatus) (*models.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	MarkSucceeded(ctx context.Context, intentID, transactionID string, raw []byte) error
	MarkFailed(ctx context.Context, intentID, reason string, raw []byte) error
	MarkCanceled(ctx context.Context, intentID string, raw []byte) error
	GetPaymentByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error)
}

// EventGuard deduplicates at-least-once webhook deliveries by event id.
// Ids are marked only after their event has been applied; a delivery that
// fails mid-processing stays unmarked so the provider's redelivery gets
// another attempt.
type EventGuard interface {
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
}

// EventPublisher emits order lifecycle events. Publishing is best-effort:
// failures are logged, never surfaced.
type EventPublisher interface {
	PublishOrderEvent(event models.OrderEvent, priority uint8) error
	PublishPaymentCheck(orderCode string, delay time.Duration) error
}

type Deps struct {
	Calculator *pricing.Calculator
	Orders     OrderLedger
	Payments   PaymentStore
	Gateway    gateway.Gateway

	Events    EventGuard     // optional
	Publisher EventPublisher // optional

	DefaultCurrency   string
	PaymentCheckDelay time.Duration

	// WarnHook is invoked with a reason label on every data-integrity
	// warning in the webhook path (unknown order code, unmatched payment).
	WarnHook func(reason string)
}

// Reconciler drives the order/payment forward flow and reconciles provider
// webhook events against local order and payment state.
type Reconciler struct {
	calc      *pricing.Calculator
	orders    OrderLedger
	payments  PaymentStore
	gw        gateway.Gateway
	events    EventGuard
	publisher EventPublisher

	defaultCurrency string
	checkDelay      time.Duration
	warnHook        func(reason string)
}

func New(deps Deps) *Reconciler {
	currency := deps.DefaultCurrency
	if currency == "" {
		currency = "CAD"
	}
	delay := deps.PaymentCheckDelay
	if delay <= 0 {
		delay = 15 * time.Minute
	}
	return &Reconciler{
		calc:            deps.Calculator,
		orders:          deps.Orders,
		payments:        deps.Payments,
		gw:              deps.Gateway,
		events:          deps.Events,
		publisher:       deps.Publisher,
		defaultCurrency: currency,
		checkDelay:      delay,
		warnHook:        deps.WarnHook,
	}
}

type CheckoutRequest struct {
	UserID         int
	Items          []models.CheckoutItem
	CheckoutData   models.CheckoutData
	AdditionalInfo string
	Currency       string
}

type CheckoutResult struct {
	ClientSecret string
	Order        *models.Order
	IntentID     string
	IntentStatus string
}

// InitiateCheckout turns a validated checkout request into a pending order,
// a gateway intent carrying the order code in its metadata, and a pending
// payment row keyed by the intent id. Partial failures compensate in
// reverse: an intent without a payment row is cancelled so no future
// webhook can arrive unmatched, while an order without an intent stays
// pending (never charged, swept later by the payment check).
func (r *Reconciler) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = r.defaultCurrency
	}

	lines := make([]pricing.LineItem, 0, len(req.Items))
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, pricing.LineItem{Price: it.Price, Quantity: it.Quantity})
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	totals, err := r.calc.Price(lines, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	amount, err := totals.TotalMinorUnits()
	if err != nil {
		return nil, err
	}

	profileID, err := r.orders.ResolveProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var (
		order  *models.Order
		intent *gateway.Intent
	)

	steps := []sagaStep{
		{
			name: "create order",
			run: func(ctx context.Context) error {
				order, err = r.orders.CreateOrder(ctx, profileID, items, totals, req.CheckoutData, req.AdditionalInfo, currency)
				return err
			},
			// A pending order that was never charged is left alone; the
			// delayed payment check owns stale pendings.
		},
		{
			name: "create intent",
			run: func(ctx context.Context) error {
				intent, err = r.gw.CreateIntent(ctx, gateway.CreateIntentRequest{
					AmountMinorUnits: amount,
					Currency:         currency,
					OrderCode:        order.ID,
					Description:      fmt.Sprintf("Payment for order %s", order.ID),
					Metadata: map[string]string{
						"userId":        strconv.Itoa(req.UserID),
						"itemCount":     strconv.Itoa(len(items)),
						"customerName":  req.CheckoutData.BillingFirstName + " " + req.CheckoutData.BillingLastName,
						"customerEmail": req.CheckoutData.BillingEmail,
					},
					// Derived from the order code: a retry after an
					// ambiguous timeout resumes the same intent instead of
					// creating a second one.
					IdempotencyKey: "intent-" + order.ID,
				})
				return err
			},
			compensate: func(ctx context.Context) error {
				return r.gw.CancelIntent(ctx, intent.ID)
			},
		},
		{
			name: "create payment record",
			run: func(ctx context.Context) error {
				err := r.payments.CreatePayment(ctx, &models.Payment{
					ID:              intent.ID,
					OrderID:         order.ID,
					Amount:          totals.Total,
					Currency:        currency,
					PaymentMethod:   intent.PaymentMethod,
					Status:          models.PaymentStatusPending,
					GatewayResponse: intent.Raw,
				})
				if errors.Is(err, ledger.ErrPaymentExists) {
					// A retried checkout reusing the idempotency key got the
					// same intent back; the row is already in place.
					return nil
				}
				if err != nil {
					return fmt.Errorf("%w: %v", ErrPaymentRecord, err)
				}
				return nil
			},
		},
	}

	if err := runSaga(ctx, steps); err != nil {
		return nil, err
	}

	r.publishOrderEvent(order, "created")
	if r.publisher != nil {
		if err := r.publisher.PublishPaymentCheck(order.ID, r.checkDelay); err != nil {
			log.Printf("reconciler: publish payment check for %s: %v", order.ID, err)
		}
	}

	return &CheckoutResult{
		ClientSecret: intent.ClientSecret,
		Order:        order,
		IntentID:     intent.ID,
		IntentStatus: intent.Status,
	}, nil
}

// HandleGatewayEvent verifies and applies one inbound provider webhook
// delivery. The only error it ever returns is a signature failure; every
// other outcome, including data-integrity problems this system cannot heal
// by provider retry, is acknowledged.
func (r *Reconciler) HandleGatewayEvent(ctx context.Context, rawBody []byte, sigHeader string) error {
	event, err := r.gw.VerifyWebhook(rawBody, sigHeader)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			return err
		}
		// verified but undecodable; a provider retry resends the same bytes
		r.warn("malformed_event")
		log.Printf("reconciler: malformed verified event: %v", err)
		return nil
	}

	if r.events != nil && event.ID != "" {
		seen, err := r.events.SeenEvent(ctx, event.ID)
		if err != nil {
			// The guard is an optimization; the conditional status update
			// below still serializes duplicates.
			log.Printf("reconciler: event guard for %s: %v", event.ID, err)
		} else if seen {
			log.Printf("reconciler: duplicate delivery of event %s ignored", event.ID)
			return nil
		}
	}

	switch event.Kind {
	case gateway.EventIntentSucceeded:
		err = r.applyIntentEvent(ctx, event, models.OrderStatusPaid)
	case gateway.EventIntentFailed:
		err = r.applyIntentEvent(ctx, event, models.OrderStatusFailed)
	case gateway.EventIntentCanceled:
		err = r.applyIntentEvent(ctx, event, models.OrderStatusCancelled)
	default:
		log.Printf("reconciler: ignoring event %s of type %s", event.ID, event.ProviderType)
	}
	if err != nil {
		// transient failure: leave the event unmarked so a redelivery of
		// the same id is applied instead of dropped
		log.Printf("reconciler: apply event %s: %v", event.ID, err)
		return nil
	}

	if r.events != nil && event.ID != "" {
		if err := r.events.MarkEventProcessed(ctx, event.ID); err != nil {
			log.Printf("reconciler: mark event %s processed: %v", event.ID, err)
		}
	}
	return nil
}

// applyIntentEvent applies one terminal intent outcome. A nil return means
// the event is settled for good (applied, absorbed as a duplicate, or a
// data-integrity warning no retry can heal); an error means a transient
// failure worth a redelivery.
func (r *Reconciler) applyIntentEvent(ctx context.Context, event *gateway.Event, to models.OrderStatus) error {
	if event.OrderCode == "" {
		r.warn("missing_order_code")
		log.Printf("reconciler: event %s (%s) carries no order code", event.ID, event.ProviderType)
		return nil
	}

	pending := models.OrderStatusPending
	order, err := r.orders.UpdateOrderStatus(ctx, event.OrderCode, &pending, to)
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		r.warn("order_not_found")
		log.Printf("reconciler: event %s references unknown order %s", event.ID, event.OrderCode)
		return nil
	case err != nil:
		return fmt.Errorf("update order %s to %s: %w", event.OrderCode, to, err)
	}

	if order.Status != to {
		// a different terminal event settled this order first; a late
		// conflicting delivery must not touch the payment or republish
		log.Printf("reconciler: event %s wants order %s %s but it is %s, ignoring", event.ID, event.OrderCode, to, order.Status)
		return nil
	}

	switch to {
	case models.OrderStatusPaid:
		err = r.payments.MarkSucceeded(ctx, event.IntentID, event.TransactionID, event.Raw)
	case models.OrderStatusFailed:
		err = r.payments.MarkFailed(ctx, event.IntentID, event.FailureReason, event.Raw)
	case models.OrderStatusCancelled:
		err = r.payments.MarkCanceled(ctx, event.IntentID, event.Raw)
	}
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound):
		r.warn("payment_not_found")
		log.Printf("reconciler: no payment row for intent %s (order %s)", event.IntentID, event.OrderCode)
	case err != nil:
		return fmt.Errorf("update payment %s: %w", event.IntentID, err)
	}

	r.publishOrderEvent(order, string(to))
	return nil
}

// ExpireStalePending resolves an order whose payment never settled. When a
// payment row exists the gateway intent is cancelled and the resulting
// canceled webhook performs the state transition; when intent creation
// never succeeded there is no webhook to wait for and the order is
// cancelled directly.
func (r *Reconciler) ExpireStalePending(ctx context.Context, orderCode string) error {
	order, err := r.orders.GetOrderByCode(ctx, orderCode)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		log.Printf("reconciler: payment check for unknown order %s", orderCode)
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPending {
		return nil
	}

	payment, err := r.payments.GetPaymentByOrderCode(ctx, orderCode)
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound):
		pending := models.OrderStatusPending
		if _, err := r.orders.UpdateOrderStatus(ctx, orderCode, &pending, models.OrderStatusCancelled); err != nil && !errors.Is(err, ledger.ErrStatusConflict) {
			return err
		}
		log.Printf("reconciler: cancelled never-charged order %s", orderCode)
		return nil
	case err != nil:
		return err
	}

	if err := r.gw.CancelIntent(ctx, payment.ID); err != nil {
		log.Printf("reconciler: cancel stale intent %s for order %s: %v", payment.ID, orderCode, err)
	}
	return nil
}

func (r *Reconciler) warn(reason string) {
	if r.warnHook != nil {
		r.warnHook(reason)
	}
}

func (r *Reconciler) publishOrderEvent(order *models.Order, eventType string) {
	if r.publisher == nil || order == nil {
		return
	}

	priority := uint8(5)
	if order.TotalPrice.GreaterThan(decimal.NewFromInt(1000)) {
		priority = 9
	}
	if eventType == string(models.OrderStatusCancelled) {
		priority = 8
	}

	event := models.OrderEvent{
		OrderID:   order.ID,
		ProfileID: order.ProfileID,
		Type:      eventType,
		Status:    string(order.Status),
		Total:     order.TotalPrice.String(),
		Occurred:  time.Now(),
	}
	if err := r.publisher.PublishOrderEvent(event, priority); err != nil {
		log.Printf("reconciler: publish %s event for order %s: %v", eventType, order.ID, err)
	}
}
