package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"checkout-service/models"
	"checkout-service/pricing"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrStatusConflict     = errors.New("order status conflict")
	ErrOrderCodeExhausted = errors.New("order code generation exhausted")
)

// Ledger owns order and order-line persistence and all order status
// transitions.
type Ledger struct {
	db     *sql.DB
	prefix string

	// newCode is swappable in tests to force collisions.
	newCode func(prefix string, now time.Time) string
}

func NewLedger(db *sql.DB, codePrefix string) *Ledger {
	return &Ledger{
		db:      db,
		prefix:  codePrefix,
		newCode: GenerateOrderCode,
	}
}

const orderColumns = `id, profile_id, subtotal, tax, shipping_amount, discount, total_price, currency, status, additional_info,
	billing_first_name, billing_last_name, billing_address_line1, billing_address_line2, billing_city, billing_state, billing_postal_code, billing_country, billing_phone_number, billing_email,
	shipping_first_name, shipping_last_name, shipping_address_line1, shipping_address_line2, shipping_city, shipping_state, shipping_postal_code, shipping_country, shipping_phone_number, shipping_email,
	created_at, updated_at`

// ResolveProfile maps an authenticated user id to its profile id.
func (l *Ledger) ResolveProfile(ctx context.Context, userID int) (int, error) {
	var profileID int
	err := l.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE user_id = ?`, userID,
	).Scan(&profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve profile: %w", err)
	}
	return profileID, nil
}

// CreateOrder persists the order and its items as one transaction, in
// status pending. On an order-code collision it regenerates the code and
// retries up to maxCodeAttempts before giving up with ErrOrderCodeExhausted.
func (l *Ledger) CreateOrder(ctx context.Context, profileID int, items []models.OrderItem, totals *pricing.Totals, data models.CheckoutData, additionalInfo, currency string) (*models.Order, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		now := time.Now()
		order := &models.Order{
			ID:              l.newCode(l.prefix, now),
			ProfileID:       profileID,
			Subtotal:        totals.Subtotal,
			Tax:             totals.Tax,
			ShippingAmount:  totals.Shipping,
			Discount:        totals.Discount,
			TotalPrice:      totals.Total,
			Currency:        currency,
			Status:          models.OrderStatusPending,
			AdditionalInfo:  additionalInfo,
			BillingContact:  data.Billing(),
			ShippingContact: data.Shipping(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		order.Items = items

		err := l.insertOrder(ctx, order)
		if isDuplicateKey(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
	return nil, ErrOrderCodeExhausted
}

func (l *Ledger) insertOrder(ctx context.Context, order *models.Order) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	b, s := order.BillingContact, order.ShippingContact
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?)`,
		order.ID, order.ProfileID, order.Subtotal, order.Tax, order.ShippingAmount, order.Discount,
		order.TotalPrice, order.Currency, order.Status, order.AdditionalInfo,
		b.FirstName, b.LastName, b.AddressLine1, b.AddressLine2, b.City, b.State, b.PostalCode, b.Country, b.PhoneNumber, b.Email,
		s.FirstName, s.LastName, s.AddressLine1, s.AddressLine2, s.City, s.State, s.PostalCode, s.Country, s.PhoneNumber, s.Email,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return err
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES (?, ?, ?, ?)`,
			item.OrderID, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

// UpdateOrderStatus performs a conditional status transition in a single
// statement; the WHERE clause is the serialization point under concurrent
// webhook deliveries. A transition attempted against a terminal status is a
// no-op that succeeds with the current row. A mismatch against a
// non-terminal status is ErrStatusConflict.
func (l *Ledger) UpdateOrderStatus(ctx context.Context, code string, fromExpected *models.OrderStatus, to models.OrderStatus) (*models.Order, error) {
	var (
		res sql.Result
		err error
	)
	if fromExpected != nil {
		res, err = l.db.ExecContext(ctx, `
			UPDATE orders SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?`,
			to, code, *fromExpected,
		)
	} else {
		res, err = l.db.ExecContext(ctx, `
			UPDATE orders SET status = ?, updated_at = NOW()
			WHERE id = ? AND status NOT IN (?, ?, ?)`,
			to, code, models.OrderStatusPaid, models.OrderStatusFailed, models.OrderStatusCancelled,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return l.GetOrderByCode(ctx, code)
	}

	current, err := l.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() || current.Status == to {
		return current, nil
	}
	return nil, fmt.Errorf("%w: order %s is %s, not transitioning to %s",
		ErrStatusConflict, code, current.Status, to)
}

func (l *Ledger) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, code)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// GetOrderDetailWithItems loads the order together with its lines.
func (l *Ledger) GetOrderDetailWithItems(ctx context.Context, code string) (*models.Order, error) {
	order, err := l.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return order, nil
}

// ListOrdersForProfile returns a profile's orders with their lines, newest
// first.
func (l *Ledger) ListOrdersForProfile(ctx context.Context, profileID int) ([]models.Order, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT o.id, o.subtotal, o.tax, o.shipping_amount, o.discount, o.total_price,
		       o.currency, o.status, o.created_at,
		       oi.product_id, oi.quantity, oi.price
		FROM orders o
		JOIN order_items oi ON o.id = oi.order_id
		WHERE o.profile_id = ?
		ORDER BY o.created_at DESC, oi.product_id ASC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	byCode := make(map[string]*models.Order)
	var ordered []string
	for rows.Next() {
		var (
			o    models.Order
			item models.OrderItem
		)
		if err := rows.Scan(&o.ID, &o.Subtotal, &o.Tax, &o.ShippingAmount, &o.Discount, &o.TotalPrice,
			&o.Currency, &o.Status, &o.CreatedAt,
			&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		existing, ok := byCode[o.ID]
		if !ok {
			o.ProfileID = profileID
			byCode[o.ID] = &o
			ordered = append(ordered, o.ID)
			existing = &o
		}
		item.OrderID = existing.ID
		existing.Items = append(existing.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	orders := make([]models.Order, 0, len(ordered))
	for _, code := range ordered {
		orders = append(orders, *byCode[code])
	}
	return orders, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*models.Order, error) {
	var (
		o    models.Order
		b, s models.Contact
	)
	err := row.Scan(
		&o.ID, &o.ProfileID, &o.Subtotal, &o.Tax, &o.ShippingAmount, &o.Discount,
		&o.TotalPrice, &o.Currency, &o.Status, &o.AdditionalInfo,
		&b.FirstName, &b.LastName, &b.AddressLine1, &b.AddressLine2, &b.City, &b.State, &b.PostalCode, &b.Country, &b.PhoneNumber, &b.Email,
		&s.FirstName, &s.LastName, &s.AddressLine1, &s.AddressLine2, &s.City, &s.State, &s.PostalCode, &s.Country, &s.PhoneNumber, &s.Email,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.BillingContact = b
	o.ShippingContact = s
	return &o, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
