package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrExternal marks failures of the payment provider. It is surfaced
// distinctly because callers may retry: no basket or order state is ever
// mutated on this path.
var ErrExternal = errors.New("payment provider failure")

// Intent is a provider-side object representing a pending, authorizable
// payment amount. The client secret is handed to the payer's client
// application to complete the payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// Provider is the external payment gateway. Both calls are blocking network
// operations; the checkout core performs no automatic retries.
type Provider interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*Intent, error)
	UpdateIntent(ctx context.Context, intentID string, amount decimal.Decimal) (*Intent, error)
}
