package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/delivery"
)

const (
	listDeliveryMethodsSQL = `SELECT id, name, price, eta FROM delivery_methods ORDER BY price`

	getDeliveryMethodSQL = `SELECT id, name, price, eta FROM delivery_methods WHERE id = $1`
)

var _ delivery.Catalog = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Catalog backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// List returns all delivery methods ordered by price.
func (r *DeliveryRepository) List(ctx context.Context) ([]delivery.Method, error) {
	rows, err := r.pool.Query(ctx, listDeliveryMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing delivery methods: %w", err)
	}
	return pgx.CollectRows(rows, scanDeliveryMethod)
}

// GetByID returns a single delivery method by its identifier.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*delivery.Method, error) {
	rows, err := r.pool.Query(ctx, getDeliveryMethodSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting delivery method %q: %w", id, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanDeliveryMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("getting delivery method %q: %w", id, err)
	}
	return &m, nil
}

func scanDeliveryMethod(row pgx.CollectableRow) (delivery.Method, error) {
	var (
		m     delivery.Method
		price decimal.Decimal
	)
	err := row.Scan(&m.ID, &m.Name, &price, &m.ETA)
	m.Price = price
	return m, err
}
