package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/models"
)

var (
	// ErrPaymentExists reports a duplicate insert for an intent id. The
	// intent id is the primary key, so this is "already applied", distinct
	// from any other write failure.
	ErrPaymentExists   = errors.New("payment already recorded")
	ErrPaymentNotFound = errors.New("payment not found")
)

// PaymentStore persists payment rows keyed by the gateway intent id. Rows
// are inserted once and only ever updated afterwards.
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (p *PaymentStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, currency, payment_method, status, gateway_response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.OrderID, payment.Amount, payment.Currency,
		payment.PaymentMethod, payment.Status, payment.GatewayResponse,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %s", ErrPaymentExists, payment.ID)
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// MarkSucceeded settles the payment: terminal status, settlement reference,
// processed timestamp and the raw provider snapshot.
func (p *PaymentStore) MarkSucceeded(ctx context.Context, intentID, transactionID string, raw []byte) error {
	return p.mark(ctx, intentID, models.PaymentStatusSucceeded, &transactionID, nil, raw)
}

func (p *PaymentStore) MarkFailed(ctx context.Context, intentID, reason string, raw []byte) error {
	return p.mark(ctx, intentID, models.PaymentStatusFailed, nil, &reason, raw)
}

func (p *PaymentStore) MarkCanceled(ctx context.Context, intentID string, raw []byte) error {
	return p.mark(ctx, intentID, models.PaymentStatusCanceled, nil, nil, raw)
}

// mark settles a pending payment. The status guard in the WHERE clause is
// the serialization point: concurrent or late deliveries of distinct
// terminal events race on it, the first one wins, and a row never leaves a
// terminal state afterwards.
func (p *PaymentStore) mark(ctx context.Context, intentID string, status models.PaymentStatus, transactionID, reason *string, raw []byte) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?,
		    transaction_id = COALESCE(?, transaction_id),
		    failure_reason = COALESCE(?, failure_reason),
		    gateway_response = ?,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = ? AND status = ?`,
		status, transactionID, reason, raw, intentID, models.PaymentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", intentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment %s: %w", intentID, err)
	}
	if n > 0 {
		return nil
	}

	// zero rows: either the row is missing or another event settled it first
	var current models.PaymentStatus
	err = p.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = ?`, intentID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, intentID)
	}
	if err != nil {
		return fmt.Errorf("get payment %s: %w", intentID, err)
	}
	// settled rows absorb late marks as no-ops
	return nil
}

func (p *PaymentStore) GetPaymentByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, currency, payment_method, status, transaction_id, failure_reason, processed_at, created_at, updated_at
		FROM payments WHERE order_id = ?`, orderCode)

	var payment models.Payment
	err := row.Scan(
		&payment.ID, &payment.OrderID, &payment.Amount, &payment.Currency,
		&payment.PaymentMethod, &payment.Status, &payment.TransactionID,
		&payment.FailureReason, &payment.ProcessedAt, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderCode)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &payment, nil
}
