package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/veloshop/checkout/internal/domain/order"
)

// ErrNoIdentity is returned when a request carries no buyer identity.
var ErrNoIdentity = errors.New("no buyer identity on request")

// IdentityProvider resolves the authenticated buyer for a request. Identity
// issuance and verification happen upstream (gateway, auth service); checkout
// only consumes the result.
type IdentityProvider interface {
	Resolve(r *http.Request) (order.Buyer, error)
}

// HeaderIdentity reads the buyer identity from trusted headers set by the
// upstream gateway after authentication.
type HeaderIdentity struct{}

// Resolve extracts the buyer from X-Buyer-Email and X-Buyer-Name.
func (HeaderIdentity) Resolve(r *http.Request) (order.Buyer, error) {
	email := r.Header.Get("X-Buyer-Email")
	if email == "" {
		return order.Buyer{}, ErrNoIdentity
	}
	return order.Buyer{
		Email: email,
		Name:  r.Header.Get("X-Buyer-Name"),
	}, nil
}
