// Package handler exposes the checkout operations over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/delivery"
	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/order"
	"github.com/veloshop/checkout/internal/domain/payment"
	"github.com/veloshop/checkout/internal/domain/product"
)

// Handler wires the checkout domain services to HTTP routes.
type Handler struct {
	baskets       *basket.Service
	products      product.Catalog
	deliveries    delivery.Catalog
	coordinator   *payment.Coordinator
	materializer  *order.Materializer
	webhook       *order.WebhookHandler
	orders        order.Repository
	identity      IdentityProvider
	webhookSecret []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	baskets *basket.Service,
	products product.Catalog,
	deliveries delivery.Catalog,
	coordinator *payment.Coordinator,
	materializer *order.Materializer,
	webhook *order.WebhookHandler,
	orders order.Repository,
	identity IdentityProvider,
	webhookSecret []byte,
) *Handler {
	return &Handler{
		baskets:       baskets,
		products:      products,
		deliveries:    deliveries,
		coordinator:   coordinator,
		materializer:  materializer,
		webhook:       webhook,
		orders:        orders,
		identity:      identity,
		webhookSecret: webhookSecret,
	}
}

// Router builds the chi router for all checkout endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/delivery-methods", h.ListDeliveryMethods)
		r.Get("/basket/{id}", h.GetBasket)
		r.Post("/basket", h.UpdateBasket)
		r.Delete("/basket/{id}", h.DeleteBasket)
		r.Post("/basket/{id}/payment-intent", h.CreatePaymentIntent)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/intent/{intentID}", h.GetOrderByIntent)
	})
	r.Post("/webhooks/payment", h.PaymentWebhook)

	return r
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain failures onto the HTTP error taxonomy:
// not-found 404, validation 400, invariant violations 422, conflicts 409,
// retryable provider failures 502. Anything unmapped is a 500 and gets
// logged.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, basket.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, basket.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyBasket),
		errors.Is(err, order.ErrBuyerRequired),
		errors.Is(err, order.ErrDeliveryRequired),
		errors.Is(err, order.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, discount.ErrInvalidOrInactive),
		errors.Is(err, discount.ErrScopeMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, discount.ErrExhausted):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, payment.ErrExternal):
		// Retryable: no state was mutated on this path.
		writeError(w, http.StatusBadGateway, "payment provider unavailable, retry later")

	default:
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
