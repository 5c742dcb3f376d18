package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/delivery"
	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/product"
)

// Coordinator computes a basket's payable total and creates or refreshes the
// provider intent for it. The basket is only written after the provider call
// succeeds, so a provider failure never leaves partial state behind.
type Coordinator struct {
	baskets    basket.Store
	products   product.Catalog
	deliveries delivery.Catalog
	resolver   *discount.Resolver
	provider   Provider
	currency   string
}

// NewCoordinator creates a Coordinator with the required dependencies.
func NewCoordinator(
	baskets basket.Store,
	products product.Catalog,
	deliveries delivery.Catalog,
	resolver *discount.Resolver,
	provider Provider,
	currency string,
) *Coordinator {
	return &Coordinator{
		baskets:    baskets,
		products:   products,
		deliveries: deliveries,
		resolver:   resolver,
		provider:   provider,
		currency:   currency,
	}
}

// CreateOrUpdateIntent recomputes the basket's total from live catalog prices
// plus the delivery method price, then reuses the basket's existing intent
// (updating its amount) or creates a new one. On success the basket's total,
// intent id and client secret are persisted in a single write.
//
// An empty deliveryMethodID means no delivery cost has been chosen yet.
func (c *Coordinator) CreateOrUpdateIntent(ctx context.Context, basketID, deliveryMethodID string) (*basket.Basket, error) {
	b, err := c.baskets.Get(ctx, basketID)
	if err != nil {
		return nil, err
	}

	total, discountValue, err := c.priceBasket(ctx, b)
	if err != nil {
		return nil, err
	}

	if deliveryMethodID != "" {
		method, err := c.deliveries.GetByID(ctx, deliveryMethodID)
		if err != nil {
			return nil, err
		}
		total = total.Add(method.Price)
	}
	total = total.Round(2)

	var intent *Intent
	if b.PaymentIntentID != "" {
		intent, err = c.provider.UpdateIntent(ctx, b.PaymentIntentID, total)
	} else {
		intent, err = c.provider.CreateIntent(ctx, total, c.currency)
	}
	if err != nil {
		return nil, err
	}

	b.Total = total
	b.DiscountValue = discountValue.Round(2)
	b.PaymentIntentID = intent.ID
	b.ClientSecret = intent.ClientSecret
	if err := c.baskets.Set(ctx, b); err != nil {
		return nil, errors.Wrap(err, "store basket")
	}
	return b, nil
}

// priceBasket re-resolves every line item against the live catalog and the
// basket's discount code, returning the discounted goods total and the total
// discount value.
func (c *Coordinator) priceBasket(ctx context.Context, b *basket.Basket) (total, discountValue decimal.Decimal, err error) {
	items, err := c.resolverItems(ctx, b)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	resolutions, err := c.resolver.PriceItems(ctx, items, b.DiscountCode)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	total, discountValue = decimal.Zero, decimal.Zero
	for i, res := range resolutions {
		qty := decimal.NewFromInt(int64(items[i].Quantity))
		total = total.Add(res.UnitPrice.Mul(qty))
		discountValue = discountValue.Add(res.DiscountAmount.Mul(qty))
	}
	return total, discountValue, nil
}

// resolverItems maps basket line items to resolver inputs using live catalog
// data. The catalog price is authoritative here, not the basket snapshot.
func (c *Coordinator) resolverItems(ctx context.Context, b *basket.Basket) ([]discount.Item, error) {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.ProductID
	}

	fetched, err := c.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]discount.Item, len(b.Items))
	for i, line := range b.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %q", line.ProductID)
		}
		items[i] = discount.Item{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			BrandID:    p.BrandID,
			Price:      p.Price,
			Quantity:   line.Quantity,
		}
	}
	return items, nil
}
