package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the order's position in the payment lifecycle.
type Status string

const (
	// StatusPending is the initial status set at materialization.
	StatusPending Status = "pending"
	// StatusPaymentReceived is terminal: the provider confirmed payment.
	StatusPaymentReceived Status = "payment_received"
	// StatusPaymentFailed is terminal: the provider rejected payment.
	StatusPaymentFailed Status = "payment_failed"
	// StatusCancelled is an administrative transition outside the checkout core.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further webhook transitions.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ItemSnapshot freezes a purchased line item at order time. Later catalog
// mutations never change a placed order.
type ItemSnapshot struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Address is the shipping address snapshot.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// DeliverySnapshot freezes the chosen delivery method and its price.
type DeliverySnapshot struct {
	MethodID string          `json:"method_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ETA      string          `json:"eta,omitempty"`
}

// DiscountSnapshot records the applied code and the total value it removed.
type DiscountSnapshot struct {
	Code  string          `json:"code,omitempty"`
	Value decimal.Decimal `json:"value"`
}

// Order is the durable result of a checkout. Everything it references is a
// value-object snapshot, never a live catalog row, and at most one live order
// exists per payment intent id.
type Order struct {
	ID              string
	BuyerEmail      string
	Items           []ItemSnapshot
	ShipTo          Address
	Delivery        DeliverySnapshot
	Discount        DiscountSnapshot
	Subtotal        decimal.Decimal
	Total           decimal.Decimal
	PaymentIntentID string
	Status          Status
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	FindByPaymentIntentID(ctx context.Context, intentID string) (*Order, error)
	Delete(ctx context.Context, id string) error
	UpdateStatusByIntentID(ctx context.Context, intentID string, status Status) error
}
