package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no transition out of s is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is identified by its human-readable order code. Money fields are
// fixed-point decimals; the total is computed once at creation and satisfies
// total = subtotal - discount + tax + shipping.
type Order struct {
	ID              string          `json:"id"`
	ProfileID       int             `json:"profile_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	ShippingAmount  decimal.Decimal `json:"shipping_amount"`
	Discount        decimal.Decimal `json:"discount"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Status          OrderStatus     `json:"status"`
	AdditionalInfo  string          `json:"additional_info"`
	BillingContact  Contact         `json:"billing_contact"`
	ShippingContact Contact         `json:"shipping_contact"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem captures the unit price at order time; later catalog price
// changes never touch it.
type OrderItem struct {
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Contact is one billing or shipping address block on an order.
type Contact struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email"`
}

type OrderEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	ProfileID int       `json:"profile_id"`
	Type      string    `json:"type"` // created, paid, failed, cancelled, payment_check
	Status    string    `json:"status"`
	Total     string    `json:"total"`
	Occurred  time.Time `json:"occurred"`
}
