package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment adopts the gateway intent id as its primary key, keeping the local
// record in 1:1 correspondence with the provider-side intent. A payment is
// inserted once per checkout attempt and only updated afterwards.
type Payment struct {
	ID              string          `json:"id"` // gateway intent id
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
	Status          PaymentStatus   `json:"status"`
	TransactionID   *string         `json:"transaction_id"`
	GatewayResponse []byte          `json:"-"` // raw provider snapshot
	FailureReason   *string         `json:"failure_reason"`
	ProcessedAt     *time.Time      `json:"processed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
