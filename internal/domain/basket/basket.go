package basket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TTL is how long a basket survives without updates. Every write refreshes it.
const TTL = 72 * time.Hour

// ErrNotFound is returned when a basket does not exist or has expired.
var ErrNotFound = errors.New("basket not found")

// LineItem is a snapshot of a product taken when it was added to the basket.
// Name, price and image are frozen so the basket renders consistently even if
// the catalog changes underneath it; the checkout pipeline re-resolves the
// product before charging.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Basket is the ephemeral cart state keyed by an opaque id. It is never the
// system of record: once an order is materialized the basket is disposed of.
type Basket struct {
	ID              string          `json:"id"`
	Items           []LineItem      `json:"items"`
	DiscountCode    string          `json:"discount_code,omitempty"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	Total           decimal.Decimal `json:"total"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	ClientSecret    string          `json:"client_secret,omitempty"`
}

// Subtotal returns the undiscounted sum of unit price times quantity across
// all line items.
func (b *Basket) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Store is a key/value basket cache. It supports only single-key
// read/modify/write: two concurrent writers to the same basket race
// last-writer-wins, which is accepted for per-user carts.
type Store interface {
	Get(ctx context.Context, id string) (*Basket, error)
	// Set persists the basket and refreshes its TTL.
	Set(ctx context.Context, b *Basket) error
	// Delete removes the basket. Deleting an absent basket is not an error.
	Delete(ctx context.Context, id string) error
}
