package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ScopeType restricts which entities a discount code applies to.
type ScopeType string

const (
	// ScopeGlobal matches every line item.
	ScopeGlobal ScopeType = "global"
	// ScopeProduct matches line items for one specific product.
	ScopeProduct ScopeType = "product"
	// ScopeCategory matches line items whose product belongs to one category.
	ScopeCategory ScopeType = "category"
	// ScopeBrand matches line items whose product belongs to one brand.
	ScopeBrand ScopeType = "brand"
)

// Status is derived from the rule's temporal window and usage counters.
// It is never stored.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
)

var (
	// ErrInvalidOrInactive is returned when a code does not exist or is not
	// currently active.
	ErrInvalidOrInactive = errors.New("invalid or inactive discount code")
	// ErrScopeMismatch is returned when an active code does not apply to the
	// line item it was used with.
	ErrScopeMismatch = errors.New("discount code does not apply to this item")
	// ErrExhausted is returned when a code's usage cap would be exceeded.
	ErrExhausted = errors.New("discount code usage limit reached")
)

// Discount is a named percentage reduction scoped to a product, category,
// brand, or the whole catalog.
type Discount struct {
	Code       string
	Scope      ScopeType
	ScopeID    string
	Percentage decimal.Decimal
	StartsAt   time.Time
	// EndsAt is optional; nil means the code never expires by time.
	EndsAt *time.Time
	// UsageCap limits successful applications; zero means unlimited.
	UsageCap   int
	UsageCount int
}

// StatusAt derives the discount's status at the given instant: NotStarted
// before the window opens, Expired past the window or once the usage cap is
// reached, Active otherwise.
func (d *Discount) StatusAt(now time.Time) Status {
	if now.Before(d.StartsAt) {
		return StatusNotStarted
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return StatusExpired
	}
	if d.UsageCap > 0 && d.UsageCount >= d.UsageCap {
		return StatusExpired
	}
	return StatusActive
}

// Matches reports whether the rule's scope covers a line item with the given
// product, category and brand ids.
func (d *Discount) Matches(productID, categoryID, brandID string) bool {
	switch d.Scope {
	case ScopeGlobal:
		return true
	case ScopeProduct:
		return d.ScopeID == productID
	case ScopeCategory:
		return d.ScopeID == categoryID
	case ScopeBrand:
		return d.ScopeID == brandID
	default:
		return false
	}
}

// Store provides lookup and usage accounting for discount codes.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Discount, error)

	// IncrementUsageIfBelowCap atomically increments the usage counter only
	// when the result stays within the cap, reporting whether the increment
	// happened. This is the authoritative cap enforcement; it must be a
	// single conditional operation against the backing store.
	IncrementUsageIfBelowCap(ctx context.Context, code string) (bool, error)

	// DecrementUsage undoes a prior increment when the surrounding order
	// failed to persist. The counter never goes below zero.
	DecrementUsage(ctx context.Context, code string) error
}
