package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
)

func TestCreateIntent_RejectsNonPositiveAmount(t *testing.T) {
	gw := NewStripe("sk_test_x", "whsec_x", time.Second)

	for _, amount := range []int64{0, -1, -4597} {
		_, err := gw.CreateIntent(context.Background(), CreateIntentRequest{
			AmountMinorUnits: amount,
			Currency:         "CAD",
			OrderCode:        "DODODR2026-AAAA-BBBB",
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	gw := NewStripe("sk_test_x", "whsec_x", time.Second)

	_, err := gw.VerifyWebhook([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestEventFromStripe_Succeeded(t *testing.T) {
	ev, err := eventFromStripe(stripe.Event{
		ID:   "evt_1",
		Type: "payment_intent.succeeded",
		Data: &stripe.EventData{
			Raw: []byte(`{
				"id": "pi_123",
				"latest_charge": "ch_456",
				"metadata": {"orderId": "DODODR2026-AAAA-BBBB"}
			}`),
		},
	})
	if err != nil {
		t.Fatalf("eventFromStripe failed: %v", err)
	}

	if ev.Kind != EventIntentSucceeded {
		t.Errorf("kind = %s, want %s", ev.Kind, EventIntentSucceeded)
	}
	if ev.IntentID != "pi_123" {
		t.Errorf("intent id = %s, want pi_123", ev.IntentID)
	}
	if ev.OrderCode != "DODODR2026-AAAA-BBBB" {
		t.Errorf("order code = %s", ev.OrderCode)
	}
	if ev.TransactionID != "ch_456" {
		t.Errorf("transaction id = %s, want ch_456", ev.TransactionID)
	}
}

func TestEventFromStripe_FailedCarriesReason(t *testing.T) {
	ev, err := eventFromStripe(stripe.Event{
		ID:   "evt_2",
		Type: "payment_intent.payment_failed",
		Data: &stripe.EventData{
			Raw: []byte(`{
				"id": "pi_123",
				"metadata": {"orderId": "DODODR2026-AAAA-BBBB"},
				"last_payment_error": {"message": "Your card was declined."}
			}`),
		},
	})
	if err != nil {
		t.Fatalf("eventFromStripe failed: %v", err)
	}

	if ev.Kind != EventIntentFailed {
		t.Errorf("kind = %s, want %s", ev.Kind, EventIntentFailed)
	}
	if ev.FailureReason != "Your card was declined." {
		t.Errorf("failure reason = %q", ev.FailureReason)
	}
}

func TestEventFromStripe_UnrecognizedKindsIgnored(t *testing.T) {
	for _, typ := range []string{"charge.succeeded", "charge.failed", "customer.created"} {
		ev, err := eventFromStripe(stripe.Event{ID: "evt_3", Type: stripe.EventType(typ)})
		if err != nil {
			t.Fatalf("type %s: eventFromStripe failed: %v", typ, err)
		}
		if ev.Kind != EventIgnored {
			t.Errorf("type %s: kind = %s, want %s", typ, ev.Kind, EventIgnored)
		}
		if ev.ProviderType != typ {
			t.Errorf("type %s: provider type = %s", typ, ev.ProviderType)
		}
	}
}
