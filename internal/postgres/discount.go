package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/discount"
)

const (
	getDiscountByCodeSQL = `SELECT code, scope_type, scope_id, percentage, starts_at, ends_at, max_uses, uses
		FROM discounts WHERE UPPER(code) = UPPER($1)`

	// The conditional increment is a single statement so that concurrent
	// checkouts can never push uses past max_uses; rows-affected tells the
	// caller whether the increment happened.
	incrementUsesIfBelowCapSQL = `UPDATE discounts SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND (max_uses = 0 OR uses < max_uses)`

	decrementUsesSQL = `UPDATE discounts SET uses = GREATEST(uses - 1, 0) WHERE UPPER(code) = UPPER($1)`
)

var _ discount.Store = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Store backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up a discount by its code (case-insensitive).
// Returns discount.ErrInvalidOrInactive when the code does not exist.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidOrInactive
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// IncrementUsageIfBelowCap atomically increments the usage counter when the
// result stays within the cap, reporting whether the increment happened.
func (r *DiscountRepository) IncrementUsageIfBelowCap(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, incrementUsesIfBelowCapSQL, code)
	if err != nil {
		return false, fmt.Errorf("incrementing uses for discount %q: %w", code, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DecrementUsage undoes a prior increment, flooring the counter at zero.
func (r *DiscountRepository) DecrementUsage(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, decrementUsesSQL, code)
	if err != nil {
		return fmt.Errorf("decrementing uses for discount %q: %w", code, err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d          discount.Discount
		scopeType  string
		percentage decimal.Decimal
		endsAt     *time.Time
		maxUses    int32
		uses       int32
	)
	err := row.Scan(
		&d.Code, &scopeType, &d.ScopeID, &percentage,
		&d.StartsAt, &endsAt, &maxUses, &uses,
	)
	d.Scope = discount.ScopeType(scopeType)
	d.Percentage = percentage
	d.EndsAt = endsAt
	d.UsageCap = int(maxUses)
	d.UsageCount = int(uses)
	return d, err
}
