package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/delivery"
	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/payment"
	"github.com/veloshop/checkout/internal/domain/product"
)

// Validation sentinels for order materialization input.
var (
	ErrEmptyBasket      = errors.New("basket has no items")
	ErrBuyerRequired    = errors.New("buyer identity required")
	ErrDeliveryRequired = errors.New("delivery method required")
	ErrInvalidAddress   = errors.New("shipping address incomplete")
)

// Buyer identifies the purchaser. Identity issuance happens upstream; the
// materializer only records it on the order.
type Buyer struct {
	Email string
	Name  string
}

// Materializer converts a basket into a durable Order: it re-validates the
// basket against the live catalog, reconciles any prior order sharing the
// same payment intent, enforces the discount usage cap atomically, persists
// the order, and disposes of the basket.
type Materializer struct {
	baskets    basket.Store
	products   product.Catalog
	deliveries delivery.Catalog
	discounts  discount.Store
	resolver   *discount.Resolver
	orders     Repository
	intents    *payment.Coordinator
	lg         *zap.Logger
	now        func() time.Time
}

// NewMaterializer creates a Materializer with the required dependencies.
func NewMaterializer(
	baskets basket.Store,
	products product.Catalog,
	deliveries delivery.Catalog,
	discounts discount.Store,
	resolver *discount.Resolver,
	orders Repository,
	intents *payment.Coordinator,
	lg *zap.Logger,
) *Materializer {
	return &Materializer{
		baskets:    baskets,
		products:   products,
		deliveries: deliveries,
		discounts:  discounts,
		resolver:   resolver,
		orders:     orders,
		intents:    intents,
		lg:         lg,
		now:        time.Now,
	}
}

// CreateOrder materializes the basket into an Order.
//
// A basket that is already gone is reported as basket.ErrNotFound; callers
// that previously requested an intent should interpret this as "possibly
// already completed" and look the order up by intent id instead of retrying.
//
// A crash after the order is persisted but before the basket is deleted
// leaves an orphan basket behind; that is accepted, because the order is the
// system of record and the basket expires on its own.
func (m *Materializer) CreateOrder(
	ctx context.Context,
	basketID, deliveryMethodID string,
	shipTo Address,
	buyer Buyer,
) (*Order, error) {
	if buyer.Email == "" {
		return nil, ErrBuyerRequired
	}
	if deliveryMethodID == "" {
		return nil, ErrDeliveryRequired
	}
	if err := shipTo.validate(); err != nil {
		return nil, err
	}

	b, err := m.baskets.Get(ctx, basketID)
	if err != nil {
		return nil, err
	}
	if len(b.Items) == 0 {
		return nil, ErrEmptyBasket
	}

	// Every product must still exist; the live catalog price is
	// authoritative from here on, not the basket snapshot.
	products, err := m.fetchProducts(ctx, b)
	if err != nil {
		return nil, err
	}

	method, err := m.deliveries.GetByID(ctx, deliveryMethodID)
	if err != nil {
		return nil, err
	}

	resolverItems := make([]discount.Item, len(b.Items))
	for i, line := range b.Items {
		p := products[i]
		resolverItems[i] = discount.Item{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			BrandID:    p.BrandID,
			Price:      p.Price,
			Quantity:   line.Quantity,
		}
	}
	resolutions, err := m.resolver.PriceItems(ctx, resolverItems, b.DiscountCode)
	if err != nil {
		return nil, err
	}

	subtotal, discountValue := decimal.Zero, decimal.Zero
	for i, res := range resolutions {
		qty := decimal.NewFromInt(int64(b.Items[i].Quantity))
		subtotal = subtotal.Add(resolverItems[i].Price.Mul(qty))
		discountValue = discountValue.Add(res.DiscountAmount.Mul(qty))
	}
	subtotal = subtotal.Round(2)
	discountValue = discountValue.Round(2)
	total := subtotal.Sub(discountValue).Add(method.Price).Round(2)

	b, err = m.reconcileIntent(ctx, b, deliveryMethodID, total)
	if err != nil {
		return nil, err
	}

	// Authoritative cap enforcement: a single conditional increment against
	// the store, so concurrent checkouts never push usage past the cap.
	incremented := false
	if b.DiscountCode != "" {
		ok, err := m.discounts.IncrementUsageIfBelowCap(ctx, b.DiscountCode)
		if err != nil {
			return nil, errors.Wrap(err, "increment discount usage")
		}
		if !ok {
			return nil, discount.ErrExhausted
		}
		incremented = true
	}

	o := &Order{
		ID:         uuid.New().String(),
		BuyerEmail: buyer.Email,
		ShipTo:     shipTo,
		Delivery: DeliverySnapshot{
			MethodID: method.ID,
			Name:     method.Name,
			Price:    method.Price,
			ETA:      method.ETA,
		},
		Discount: DiscountSnapshot{
			Code:  b.DiscountCode,
			Value: discountValue,
		},
		Subtotal:        subtotal,
		Total:           total,
		PaymentIntentID: b.PaymentIntentID,
		Status:          StatusPending,
		CreatedAt:       m.now(),
	}
	o.Items = make([]ItemSnapshot, len(b.Items))
	for i, line := range b.Items {
		p := products[i]
		o.Items[i] = ItemSnapshot{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			Image:     p.Image,
		}
	}

	if err := m.orders.Insert(ctx, o); err != nil {
		if incremented {
			if derr := m.discounts.DecrementUsage(ctx, b.DiscountCode); derr != nil {
				m.lg.Error("compensating discount decrement failed",
					zap.String("code", b.DiscountCode), zap.Error(derr))
			}
		}
		return nil, errors.Wrap(err, "insert order")
	}

	// Best-effort: the order fully supersedes the basket, and an undeleted
	// basket expires on its own TTL.
	if err := m.baskets.Delete(ctx, b.ID); err != nil {
		m.lg.Warn("basket deletion failed after order creation",
			zap.String("basket_id", b.ID), zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// fetchProducts resolves every basket line against the catalog, preserving
// line order. A vanished product fails the whole materialization.
func (m *Materializer) fetchProducts(ctx context.Context, b *basket.Basket) ([]product.Product, error) {
	ids := make([]string, len(b.Items))
	for i, line := range b.Items {
		ids[i] = line.ProductID
	}

	fetched, err := m.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	products := make([]product.Product, len(b.Items))
	for i, line := range b.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %q", line.ProductID)
		}
		products[i] = p
	}
	return products, nil
}

// reconcileIntent enforces the single-order-per-intent invariant and makes
// sure the intent amount matches the freshly computed total.
//
// If a prior order already holds the basket's intent (an incomplete or
// duplicate checkout), that order is deleted and a fresh intent is requested
// so the new order binds to a non-colliding intent id. The intent is also
// refreshed when the basket has no intent yet or its stored total is stale.
func (m *Materializer) reconcileIntent(
	ctx context.Context,
	b *basket.Basket,
	deliveryMethodID string,
	total decimal.Decimal,
) (*basket.Basket, error) {
	if b.PaymentIntentID != "" {
		stale, err := m.orders.FindByPaymentIntentID(ctx, b.PaymentIntentID)
		switch {
		case err == nil:
			m.lg.Info("superseding stale order for payment intent",
				zap.String("order_id", stale.ID), zap.String("intent_id", b.PaymentIntentID))
			if err := m.orders.Delete(ctx, stale.ID); err != nil {
				return nil, errors.Wrap(err, "delete stale order")
			}
			b.PaymentIntentID = ""
			b.ClientSecret = ""
			if err := m.baskets.Set(ctx, b); err != nil {
				return nil, errors.Wrap(err, "store basket")
			}
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find order by intent")
		}
	}

	if b.PaymentIntentID == "" || !b.Total.Equal(total) {
		return m.intents.CreateOrUpdateIntent(ctx, b.ID, deliveryMethodID)
	}
	return b, nil
}

// validate checks that the address carries the minimum fields needed to ship.
func (a Address) validate() error {
	if a.FullName == "" || a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrInvalidAddress
	}
	return nil
}
