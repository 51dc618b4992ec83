package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdeskapp/labdesk/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, order_number, patient_id, total_cents, discount_cents, final_cents,
	payment_method, stripe_checkout_session_id, status,
	created_at, updated_at, confirmed_at, collected_at, completed_at, cancelled_at`

// statusTimestampColumns maps statuses to the column stamped when the
// order enters that status. Values are fixed identifiers, never user input.
var statusTimestampColumns = map[models.OrderStatus]string{
	models.StatusConfirmed:       "confirmed_at",
	models.StatusSampleCollected: "collected_at",
	models.StatusCompleted:       "completed_at",
	models.StatusCancelled:       "cancelled_at",
}

// Create inserts the order and its items in one transaction. The order
// number is assigned from a database sequence.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, patient_id, total_cents, discount_cents, final_cents, payment_method, status)
		VALUES ($1, 'LD-' || lpad(nextval('order_number_seq')::text, 6, '0'), $2, $3, $4, $5, $6, $7)
		RETURNING order_number, created_at, updated_at`,
		order.ID, order.PatientID, order.TotalCents, order.DiscountCents, order.FinalCents,
		string(order.PaymentMethod), string(order.Status),
	)
	if err := row.Scan(&order.OrderNumber, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, item_code, item_name, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.ItemCode, item.ItemName, item.Quantity, item.UnitPriceCents,
		); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *OrderStore) GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (s *OrderStore) GetByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_checkout_session_id = $1`, sessionID)
}

func (s *OrderStore) getOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := s.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// List returns orders newest first, optionally filtered by status.
func (s *OrderStore) List(ctx context.Context, status *models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	for _, order := range orders {
		items, err := s.listItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
	}
	return orders, nil
}

func (s *OrderStore) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE patient_id = $1 ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateStatus moves the order from expected to next atomically. It
// returns ErrNotFound when no row matched, which callers interpret as a
// concurrent modification when the order is known to exist.
func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = now()`
	if column, ok := statusTimestampColumns[next]; ok {
		query += `, ` + column + ` = now()`
	}
	query += ` WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, string(next), id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStripeSession records the checkout session backing a prepaid order.
func (s *OrderStore) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET stripe_checkout_session_id = $1, updated_at = now() WHERE id = $2`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set stripe session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OrderStore) listItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, item_code, item_name, quantity, unit_price_cents
		FROM order_items WHERE order_id = $1 ORDER BY item_code`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemCode, &item.ItemName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order         models.Order
		paymentMethod string
		status        string
		stripeSession pgtype.Text
		confirmedAt   pgtype.Timestamptz
		collectedAt   pgtype.Timestamptz
		completedAt   pgtype.Timestamptz
		cancelledAt   pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.PatientID,
		&order.TotalCents, &order.DiscountCents, &order.FinalCents,
		&paymentMethod, &stripeSession, &status,
		&order.CreatedAt, &order.UpdatedAt,
		&confirmedAt, &collectedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.Status = models.OrderStatus(status)
	order.StripeCheckoutSessionID = stripeSession.String
	if confirmedAt.Valid {
		order.ConfirmedAt = confirmedAt.Time
	}
	if collectedAt.Valid {
		order.CollectedAt = collectedAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = cancelledAt.Time
	}
	return &order, nil
}
