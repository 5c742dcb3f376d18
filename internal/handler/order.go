package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/order"
)

// addressRequest is the shipping address in order placement requests.
type addressRequest struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type placeOrderRequest struct {
	BasketID         string         `json:"basketId"`
	DeliveryMethodID string         `json:"deliveryMethodId"`
	ShippingAddress  addressRequest `json:"shippingAddress"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	BuyerEmail      string              `json:"buyerEmail"`
	Items           []orderItemResponse `json:"items"`
	DeliveryMethod  string              `json:"deliveryMethod"`
	DeliveryPrice   float64             `json:"deliveryPrice"`
	DiscountCode    string              `json:"discountCode,omitempty"`
	DiscountValue   float64             `json:"discountValue"`
	Subtotal        float64             `json:"subtotal"`
	Total           float64             `json:"total"`
	PaymentIntentID string              `json:"paymentIntentId"`
	Status          string              `json:"status"`
	CreatedAt       string              `json:"createdAt"`
}

// PlaceOrder materializes the basket into a durable order for the
// authenticated buyer.
//
// When the basket is already gone but the client knows its intent id, the
// order may have been created by an earlier attempt; clients recover through
// GET /api/orders/intent/{intentID} rather than retrying placement.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	buyer, err := h.identity.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BasketID == "" {
		writeError(w, http.StatusBadRequest, "basketId is required")
		return
	}

	o, err := h.materializer.CreateOrder(r.Context(), req.BasketID, req.DeliveryMethodID, order.Address{
		FullName:   req.ShippingAddress.FullName,
		Line1:      req.ShippingAddress.Line1,
		Line2:      req.ShippingAddress.Line2,
		City:       req.ShippingAddress.City,
		State:      req.ShippingAddress.State,
		PostalCode: req.ShippingAddress.PostalCode,
		Country:    req.ShippingAddress.Country,
	}, buyer)
	if err != nil {
		if errors.Is(err, basket.ErrNotFound) {
			// The basket may have been consumed by a completed checkout.
			writeError(w, http.StatusNotFound,
				"basket not found; if payment was already requested, look the order up by its payment intent id")
			return
		}
		writeDomainError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("intent_id", o.PaymentIntentID))
	writeJSON(w, http.StatusCreated, mapOrder(o))
}

// GetOrderByIntent is the duplicate-checkout recovery lookup: it resolves an
// order by the payment intent id a client holds from an earlier attempt.
func (h *Handler) GetOrderByIntent(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FindByPaymentIntentID(r.Context(), chi.URLParam(r, "intentID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(o))
}

func mapOrder(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			Quantity:  item.Quantity,
		}
	}
	return orderResponse{
		ID:              o.ID,
		BuyerEmail:      o.BuyerEmail,
		Items:           items,
		DeliveryMethod:  o.Delivery.Name,
		DeliveryPrice:   o.Delivery.Price.InexactFloat64(),
		DiscountCode:    o.Discount.Code,
		DiscountValue:   o.Discount.Value.InexactFloat64(),
		Subtotal:        o.Subtotal.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		PaymentIntentID: o.PaymentIntentID,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
