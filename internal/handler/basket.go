package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/basket"
)

// basketItemRequest is one requested basket line.
type basketItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// updateBasketRequest creates or replaces a basket.
type updateBasketRequest struct {
	// ID is empty for a new basket.
	ID           string              `json:"id,omitempty"`
	Items        []basketItemRequest `json:"items"`
	DiscountCode string              `json:"discountCode,omitempty"`
}

type basketItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

type basketResponse struct {
	ID              string               `json:"id"`
	Items           []basketItemResponse `json:"items"`
	DiscountCode    string               `json:"discountCode,omitempty"`
	DiscountValue   float64              `json:"discountValue"`
	Subtotal        float64              `json:"subtotal"`
	Total           float64              `json:"total"`
	PaymentIntentID string               `json:"paymentIntentId,omitempty"`
	ClientSecret    string               `json:"clientSecret,omitempty"`
}

// GetBasket returns the basket by id.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	b, err := h.baskets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBasket(b))
}

// UpdateBasket creates a new basket or replaces an existing basket's
// contents, refreshing its TTL.
func (h *Handler) UpdateBasket(w http.ResponseWriter, r *http.Request) {
	var req updateBasketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items := make([]basket.ItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = basket.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	b, err := h.baskets.Update(r.Context(), req.ID, items, req.DiscountCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBasket(b))
}

// DeleteBasket removes the basket. Deleting an absent basket succeeds.
func (h *Handler) DeleteBasket(w http.ResponseWriter, r *http.Request) {
	if err := h.baskets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createIntentRequest selects the delivery method priced into the intent.
type createIntentRequest struct {
	DeliveryMethodID string `json:"deliveryMethodId,omitempty"`
}

// CreatePaymentIntent computes the basket's payable total and creates or
// refreshes the provider intent for it.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	b, err := h.coordinator.CreateOrUpdateIntent(r.Context(), chi.URLParam(r, "id"), req.DeliveryMethodID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBasket(b))
}

func mapBasket(b *basket.Basket) basketResponse {
	items := make([]basketItemResponse, len(b.Items))
	subtotal := decimal.Zero
	for i, item := range b.Items {
		items[i] = basketItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			Quantity:  item.Quantity,
			Image:     item.Image,
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return basketResponse{
		ID:              b.ID,
		Items:           items,
		DiscountCode:    b.DiscountCode,
		DiscountValue:   b.DiscountValue.InexactFloat64(),
		Subtotal:        subtotal.Round(2).InexactFloat64(),
		Total:           b.Total.InexactFloat64(),
		PaymentIntentID: b.PaymentIntentID,
		ClientSecret:    b.ClientSecret,
	}
}
