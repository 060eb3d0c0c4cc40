package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"checkout-service/gateway"
	"checkout-service/ledger"
	"checkout-service/models"
	"checkout-service/pricing"
	"checkout-service/reconciler"
)

type fakeCheckouter struct {
	result *reconciler.CheckoutResult
	err    error

	checkoutReq *reconciler.CheckoutRequest
	webhookBody []byte
	webhookSig  string
	webhookErr  error
}

func (f *fakeCheckouter) InitiateCheckout(_ context.Context, req reconciler.CheckoutRequest) (*reconciler.CheckoutResult, error) {
	f.checkoutReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCheckouter) HandleGatewayEvent(_ context.Context, rawBody []byte, sigHeader string) error {
	f.webhookBody = rawBody
	f.webhookSig = sigHeader
	return f.webhookErr
}

func newCheckoutRouter(rec Checkouter, userID any) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cc := NewCheckoutController(rec)
	r.POST("/api/checkout/create-payment-intent", func(c *gin.Context) {
		if userID != nil {
			c.Set("userID", userID)
		}
		cc.CreatePaymentIntent(c)
	})
	r.POST("/webhook/gateway", cc.Webhook)
	return r
}

func validCheckoutBody() string {
	body := map[string]any{
		"order_items": []map[string]any{
			{"product_id": "prod-1", "quantity": 2, "price": "19.99"},
		},
		"checkout_data": map[string]any{
			"billing_first_name":    "Ada",
			"billing_last_name":     "Lovelace",
			"billing_address_line1": "1 Rue Principale",
			"billing_city":          "Montreal",
			"billing_postal_code":   "H2X 1Y4",
			"billing_country":       "CA",
			"billing_email":         "ada@example.com",
		},
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func TestCreatePaymentIntentSuccess(t *testing.T) {
	rec := &fakeCheckouter{
		result: &reconciler.CheckoutResult{
			ClientSecret: "pi_123_secret_abc",
			Order: &models.Order{
				ID:         "DODODR2026-AAAA-BBBB",
				TotalPrice: decimal.RequireFromString("45.97"),
				Status:     models.OrderStatusPending,
			},
			IntentID:     "pi_123",
			IntentStatus: "requires_payment_method",
		},
	}
	r := newCheckoutRouter(rec, 42)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-payment-intent", strings.NewReader(validCheckoutBody()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if rec.checkoutReq == nil {
		t.Fatal("InitiateCheckout not called")
	}
	if rec.checkoutReq.UserID != 42 {
		t.Errorf("UserID = %d, want 42", rec.checkoutReq.UserID)
	}
	if len(rec.checkoutReq.Items) != 1 || rec.checkoutReq.Items[0].ProductID != "prod-1" {
		t.Errorf("unexpected items: %+v", rec.checkoutReq.Items)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["clientSecret"] != "pi_123_secret_abc" {
		t.Errorf("clientSecret = %v", resp["clientSecret"])
	}
	if resp["orderId"] != "DODODR2026-AAAA-BBBB" {
		t.Errorf("orderId = %v", resp["orderId"])
	}
	intent, ok := resp["paymentIntent"].(map[string]any)
	if !ok || intent["id"] != "pi_123" {
		t.Errorf("paymentIntent = %v", resp["paymentIntent"])
	}
}

func TestCreatePaymentIntentUnauthenticated(t *testing.T) {
	rec := &fakeCheckouter{}
	r := newCheckoutRouter(rec, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-payment-intent", strings.NewReader(validCheckoutBody()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if rec.checkoutReq != nil {
		t.Error("InitiateCheckout called for unauthenticated request")
	}
}

func TestCreatePaymentIntentBindErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty items", `{"order_items":[],"checkout_data":{"billing_first_name":"A","billing_last_name":"B","billing_address_line1":"C","billing_city":"D","billing_postal_code":"E","billing_country":"F","billing_email":"a@b.co"}}`},
		{"missing billing email", `{"order_items":[{"product_id":"p","quantity":1,"price":"1.00"}],"checkout_data":{"billing_first_name":"A","billing_last_name":"B","billing_address_line1":"C","billing_city":"D","billing_postal_code":"E","billing_country":"F"}}`},
		{"not json", `not-json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeCheckouter{}
			r := newCheckoutRouter(rec, 1)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-payment-intent", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body.String())
			}
			if rec.checkoutReq != nil {
				t.Error("InitiateCheckout called for invalid request")
			}
		})
	}
}

func TestCreatePaymentIntentErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid line item", pricing.ErrInvalidLineItem, http.StatusBadRequest},
		{"invalid amount", gateway.ErrInvalidAmount, http.StatusBadRequest},
		{"profile not found", ledger.ErrProfileNotFound, http.StatusBadRequest},
		{"card declined", &gateway.Error{Class: gateway.ClassCardDeclined, Message: "insufficient funds"}, http.StatusPaymentRequired},
		{"gateway invalid request", &gateway.Error{Class: gateway.ClassInvalidRequest, Message: "bad currency"}, http.StatusBadRequest},
		{"gateway internal", &gateway.Error{Class: gateway.ClassProviderInternal, Message: "upstream down"}, http.StatusInternalServerError},
		{"payment record", reconciler.ErrPaymentRecord, http.StatusInternalServerError},
		{"unclassified", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeCheckouter{err: tc.err}
			r := newCheckoutRouter(rec, 7)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-payment-intent", strings.NewReader(validCheckoutBody()))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestWebhookPassesRawBytes(t *testing.T) {
	rec := &fakeCheckouter{}
	r := newCheckoutRouter(rec, nil)

	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if string(rec.webhookBody) != payload {
		t.Errorf("body forwarded = %q, want %q", rec.webhookBody, payload)
	}
	if rec.webhookSig != "t=1,v1=deadbeef" {
		t.Errorf("signature forwarded = %q", rec.webhookSig)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["received"] != true {
		t.Errorf("response = %v", resp)
	}
}

func TestWebhookSignatureFailure(t *testing.T) {
	rec := &fakeCheckouter{webhookErr: gateway.ErrSignatureInvalid}
	r := newCheckoutRouter(rec, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", strings.NewReader(`{}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "Webhook Error:") {
		t.Errorf("body = %q", w.Body.String())
	}
}
