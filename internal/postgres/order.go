package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, buyer_email, items, ship_to, delivery_method, discount_code, discount_value,
		 subtotal, total, payment_intent_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	findOrderByIntentSQL = `SELECT id, buyer_email, items, ship_to, delivery_method, discount_code,
		discount_value, subtotal, total, payment_intent_id, status, created_at
		FROM orders WHERE payment_intent_id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	updateStatusByIntentSQL = `UPDATE orders SET status = $2 WHERE payment_intent_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Item,
// address and delivery snapshots are serialized to JSONB columns; the
// payment_intent_id column carries a unique index, which backs the
// one-live-order-per-intent invariant.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists a new order.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shipToJSON, err := json.Marshal(o.ShipTo)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	deliveryJSON, err := json.Marshal(o.Delivery)
	if err != nil {
		return fmt.Errorf("marshaling delivery snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.BuyerEmail, itemsJSON, shipToJSON, deliveryJSON,
		o.Discount.Code, o.Discount.Value,
		o.Subtotal, o.Total, o.PaymentIntentID, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// FindByPaymentIntentID returns the order bound to the given intent id, or
// order.ErrNotFound.
func (r *OrderRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, findOrderByIntentSQL, intentID)
	if err != nil {
		return nil, fmt.Errorf("finding order by intent %q: %w", intentID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order by intent %q: %w", intentID, err)
	}
	return &o, nil
}

// Delete removes an order by id. Used only to supersede a stale order that
// shares a payment intent with a newer materialization.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

// UpdateStatusByIntentID sets the status of the order bound to the intent.
func (r *OrderRepository) UpdateStatusByIntentID(ctx context.Context, intentID string, status order.Status) error {
	_, err := r.pool.Exec(ctx, updateStatusByIntentSQL, intentID, string(status))
	if err != nil {
		return fmt.Errorf("updating status for intent %q: %w", intentID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		itemsJSON    []byte
		shipToJSON   []byte
		deliveryJSON []byte
		status       string
		value        decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.BuyerEmail, &itemsJSON, &shipToJSON, &deliveryJSON,
		&o.Discount.Code, &value, &o.Subtotal, &o.Total,
		&o.PaymentIntentID, &status, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Discount.Value = value
	o.Status = order.Status(status)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shipToJSON, &o.ShipTo); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(deliveryJSON, &o.Delivery); err != nil {
		return o, fmt.Errorf("unmarshaling delivery snapshot: %w", err)
	}
	return o, nil
}
