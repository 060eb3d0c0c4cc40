package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"checkout-service/ledger"
	"checkout-service/models"
)

type fakeOrderStore struct {
	profiles map[int]int
	orders   map[string]*models.Order

	updatedCode string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		profiles: map[int]int{42: 7, 43: 8},
		orders: map[string]*models.Order{
			"DODODR2026-AAAA-BBBB": {ID: "DODODR2026-AAAA-BBBB", ProfileID: 7, Status: models.OrderStatusPending},
		},
	}
}

func (f *fakeOrderStore) ResolveProfile(_ context.Context, userID int) (int, error) {
	if id, ok := f.profiles[userID]; ok {
		return id, nil
	}
	return 0, ledger.ErrProfileNotFound
}

func (f *fakeOrderStore) GetOrderDetailWithItems(_ context.Context, code string) (*models.Order, error) {
	order, ok := f.orders[code]
	if !ok {
		return nil, ledger.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) ListOrdersForProfile(_ context.Context, profileID int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.ProfileID == profileID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, code string, fromExpected *models.OrderStatus, to models.OrderStatus) (*models.Order, error) {
	order, ok := f.orders[code]
	if !ok {
		return nil, ledger.ErrOrderNotFound
	}
	if fromExpected != nil && order.Status != *fromExpected {
		return nil, ledger.ErrStatusConflict
	}
	order.Status = to
	f.updatedCode = code
	copied := *order
	return &copied, nil
}

func newOrderRouter(store OrderStore, userID any) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	oc := NewOrderController(store)
	auth := func(c *gin.Context) {
		if userID != nil {
			c.Set("userID", userID)
		}
	}
	r.GET("/api/orders/:code", auth, oc.GetOrderDetails)
	r.PUT("/api/orders/:code/status", auth, oc.UpdateOrderStatus)
	return r
}

func putStatus(r *gin.Engine, code, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/orders/"+code+"/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateOrderStatus_OwnOrder(t *testing.T) {
	store := newFakeOrderStore()
	r := newOrderRouter(store, 42)

	w := putStatus(r, "DODODR2026-AAAA-BBBB", `{"status":"cancelled"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if store.orders["DODODR2026-AAAA-BBBB"].Status != models.OrderStatusCancelled {
		t.Error("order status not updated")
	}
}

func TestUpdateOrderStatus_ForeignOrderIsNotFound(t *testing.T) {
	// user 43 owns profile 8; the order belongs to profile 7
	store := newFakeOrderStore()
	r := newOrderRouter(store, 43)

	w := putStatus(r, "DODODR2026-AAAA-BBBB", `{"status":"cancelled"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", w.Code, w.Body.String())
	}
	if store.updatedCode != "" {
		t.Error("foreign order was mutated")
	}
	if store.orders["DODODR2026-AAAA-BBBB"].Status != models.OrderStatusPending {
		t.Error("foreign order status changed")
	}
}

func TestUpdateOrderStatus_UnknownProfileIsNotFound(t *testing.T) {
	store := newFakeOrderStore()
	r := newOrderRouter(store, 99)

	w := putStatus(r, "DODODR2026-AAAA-BBBB", `{"status":"cancelled"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if store.updatedCode != "" {
		t.Error("order was mutated without a resolvable profile")
	}
}

func TestUpdateOrderStatus_BadStatusValue(t *testing.T) {
	store := newFakeOrderStore()
	r := newOrderRouter(store, 42)

	w := putStatus(r, "DODODR2026-AAAA-BBBB", `{"status":"shipped"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetOrderDetails_ForeignOrderIsNotFound(t *testing.T) {
	store := newFakeOrderStore()
	r := newOrderRouter(store, 43)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/DODODR2026-AAAA-BBBB", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
