package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item carries the product attributes the resolver needs to scope-check and
// price a single line item.
type Item struct {
	ProductID  string
	CategoryID string
	BrandID    string
	Price      decimal.Decimal
	Quantity   int
}

// Resolution is the outcome of applying a code to one line item.
// DiscountAmount is per unit; callers scale it by quantity.
type Resolution struct {
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// Resolver evaluates whether a discount code applies to a line item and
// computes the discounted unit price. The usage-cap check here is advisory
// only; the authoritative, atomic enforcement happens when the order is
// materialized.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a Resolver backed by the given Store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve applies the named code to the item. An empty code yields the
// unchanged price and zero discount. A missing or inactive code fails with
// ErrInvalidOrInactive; an active code that does not cover the item fails
// with ErrScopeMismatch. A discount is never applied partially.
func (r *Resolver) Resolve(ctx context.Context, item Item, code string) (Resolution, error) {
	if code == "" {
		return Resolution{UnitPrice: item.Price, DiscountAmount: decimal.Zero}, nil
	}

	d, err := r.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrInactive) {
			return Resolution{}, ErrInvalidOrInactive
		}
		return Resolution{}, errors.Wrap(err, "lookup discount")
	}

	if d.StatusAt(r.now()) != StatusActive {
		return Resolution{}, ErrInvalidOrInactive
	}

	if !d.Matches(item.ProductID, item.CategoryID, item.BrandID) {
		return Resolution{}, ErrScopeMismatch
	}

	unitPrice := item.Price.Mul(decimal.NewFromInt(1).Sub(d.Percentage.Div(hundred))).Round(2)
	if unitPrice.IsNegative() {
		unitPrice = decimal.Zero
	}

	return Resolution{
		UnitPrice:      unitPrice,
		DiscountAmount: item.Price.Sub(unitPrice),
	}, nil
}

// PriceItems resolves the code against every item in a basket. Items outside
// the code's scope keep their undiscounted price; the code only fails with
// ErrScopeMismatch when it matches none of the items at all. The returned
// slice is index-aligned with items.
func (r *Resolver) PriceItems(ctx context.Context, items []Item, code string) ([]Resolution, error) {
	resolutions := make([]Resolution, len(items))
	matched := code == ""

	for i, item := range items {
		res, err := r.Resolve(ctx, item, code)
		switch {
		case err == nil:
			matched = matched || code != ""
		case errors.Is(err, ErrScopeMismatch):
			res = Resolution{UnitPrice: item.Price, DiscountAmount: decimal.Zero}
		default:
			return nil, err
		}
		resolutions[i] = res
	}

	if !matched {
		return nil, ErrScopeMismatch
	}
	return resolutions, nil
}
