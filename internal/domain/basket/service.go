package basket

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/product"
)

// ErrInvalidQuantity is returned when a line item has a non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// ItemInput is a requested basket line: a product reference plus quantity.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// Service owns basket reads and writes. Updates snapshot the current catalog
// state into the basket and recompute the discounted total.
type Service struct {
	store    Store
	products product.Catalog
	resolver *discount.Resolver
}

// NewService creates a basket Service with the required dependencies.
func NewService(store Store, products product.Catalog, resolver *discount.Resolver) *Service {
	return &Service{
		store:    store,
		products: products,
		resolver: resolver,
	}
}

// Get returns the basket with the given id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Basket, error) {
	return s.store.Get(ctx, id)
}

// Delete removes the basket. Absent baskets are not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Update replaces the basket's contents and recomputes its totals. An empty
// id creates a new basket. Product name, price and image are snapshotted from
// the catalog at update time, and the TTL is refreshed on every write.
//
// A previously stored payment intent survives the update so that a later
// intent refresh reuses the same provider object.
func (s *Service) Update(ctx context.Context, id string, items []ItemInput, code string) (*Basket, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %q", item.ProductID)
		}
	}

	b := &Basket{ID: id}
	if b.ID == "" {
		b.ID = uuid.New().String()
	} else {
		prev, err := s.store.Get(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "load basket")
		}
		if prev != nil {
			b.PaymentIntentID = prev.PaymentIntentID
			b.ClientSecret = prev.ClientSecret
		}
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	resolverItems := make([]discount.Item, len(items))
	b.Items = make([]LineItem, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %q", item.ProductID)
		}
		b.Items[i] = LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
			Image:     p.Image,
		}
		resolverItems[i] = discount.Item{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			BrandID:    p.BrandID,
			Price:      p.Price,
			Quantity:   item.Quantity,
		}
	}

	resolutions, err := s.resolver.PriceItems(ctx, resolverItems, code)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	discountValue := decimal.Zero
	for i, res := range resolutions {
		qty := decimal.NewFromInt(int64(items[i].Quantity))
		total = total.Add(res.UnitPrice.Mul(qty))
		discountValue = discountValue.Add(res.DiscountAmount.Mul(qty))
	}

	b.DiscountCode = code
	b.DiscountValue = discountValue.Round(2)
	b.Total = total.Round(2)

	if err := s.store.Set(ctx, b); err != nil {
		return nil, errors.Wrap(err, "store basket")
	}
	return b, nil
}
