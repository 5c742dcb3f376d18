package delivery

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested delivery method does not exist.
var ErrNotFound = errors.New("delivery method not found")

// Method represents a shipping option with a fixed price.
type Method struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// ETA is a human-readable delivery estimate, e.g. "1-2 business days".
	ETA string
}

// Catalog defines read operations for delivery methods.
type Catalog interface {
	List(ctx context.Context) ([]Method, error)
	GetByID(ctx context.Context, id string) (*Method, error)
}
