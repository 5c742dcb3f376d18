package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veloshop/checkout/internal/domain/product"
)

type productResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	CategoryID string  `json:"categoryId,omitempty"`
	BrandID    string  `json:"brandId,omitempty"`
	Image      string  `json:"image,omitempty"`
}

type deliveryMethodResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	ETA   string  `json:"eta,omitempty"`
}

// ListProducts returns the purchasable catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = mapProduct(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single catalog product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(*p))
}

// ListDeliveryMethods returns the available shipping options.
func (h *Handler) ListDeliveryMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.deliveries.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]deliveryMethodResponse, len(methods))
	for i, m := range methods {
		out[i] = deliveryMethodResponse{
			ID:    m.ID,
			Name:  m.Name,
			Price: m.Price.InexactFloat64(),
			ETA:   m.ETA,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func mapProduct(p product.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.InexactFloat64(),
		CategoryID: p.CategoryID,
		BrandID:    p.BrandID,
		Image:      p.Image,
	}
}
