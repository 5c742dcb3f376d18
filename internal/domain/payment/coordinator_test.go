package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/delivery"
	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockBasketStore struct {
	mu      sync.Mutex
	baskets map[string]*basket.Basket
	setErr  error
}

func newBasketStore(baskets ...*basket.Basket) *mockBasketStore {
	m := &mockBasketStore{baskets: make(map[string]*basket.Basket)}
	for _, b := range baskets {
		cp := *b
		m.baskets[b.ID] = &cp
	}
	return m
}

func (m *mockBasketStore) Get(_ context.Context, id string) (*basket.Basket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.baskets[id]
	if !ok {
		return nil, basket.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBasketStore) Set(_ context.Context, b *basket.Basket) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.baskets[b.ID] = &cp
	return nil
}

func (m *mockBasketStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.baskets, id)
	return nil
}

type mockCatalog struct {
	byID map[string]product.Product
}

func newCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{byID: byID}
}

func (m *mockCatalog) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDeliveries struct {
	byID map[string]delivery.Method
}

func (m *mockDeliveries) List(_ context.Context) ([]delivery.Method, error) { return nil, nil }

func (m *mockDeliveries) GetByID(_ context.Context, id string) (*delivery.Method, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	return &d, nil
}

type mockDiscountStore struct {
	byCode map[string]*discount.Discount
}

func (m *mockDiscountStore) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	d, ok := m.byCode[code]
	if !ok {
		return nil, discount.ErrInvalidOrInactive
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiscountStore) IncrementUsageIfBelowCap(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (m *mockDiscountStore) DecrementUsage(_ context.Context, _ string) error { return nil }

type providerCall struct {
	intentID string
	amount   decimal.Decimal
	currency string
}

type mockProvider struct {
	creates []providerCall
	updates []providerCall
	err     error
	nextID  string
}

func (m *mockProvider) CreateIntent(_ context.Context, amount decimal.Decimal, currency string) (*Intent, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.creates = append(m.creates, providerCall{amount: amount, currency: currency})
	id := m.nextID
	if id == "" {
		id = "pi_new"
	}
	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (m *mockProvider) UpdateIntent(_ context.Context, intentID string, amount decimal.Decimal) (*Intent, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.updates = append(m.updates, providerCall{intentID: intentID, amount: amount})
	return &Intent{ID: intentID, ClientSecret: intentID + "_secret"}, nil
}

// --- Helpers ---

func testCoordinator(
	baskets basket.Store,
	products product.Catalog,
	deliveries delivery.Catalog,
	discounts discount.Store,
	provider Provider,
) *Coordinator {
	return NewCoordinator(baskets, products, deliveries, discount.NewResolver(discounts), provider, "usd")
}

func discountedBasket() (*mockBasketStore, *mockCatalog, *mockDeliveries, *mockDiscountStore) {
	widget := product.Product{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("100.00")}
	baskets := newBasketStore(&basket.Basket{
		ID:           "b1",
		DiscountCode: "SAVE10",
		Items: []basket.LineItem{
			{ProductID: "p1", Name: "Widget", UnitPrice: widget.Price, Quantity: 2},
		},
	})
	deliveries := &mockDeliveries{byID: map[string]delivery.Method{
		"express": {ID: "express", Name: "Express", Price: decimal.RequireFromString("10.00")},
	}}
	discounts := &mockDiscountStore{byCode: map[string]*discount.Discount{
		"SAVE10": {
			Code:       "SAVE10",
			Scope:      discount.ScopeGlobal,
			Percentage: decimal.NewFromInt(10),
			StartsAt:   time.Now().Add(-time.Hour),
		},
	}}
	return baskets, newCatalog(widget), deliveries, discounts
}

// --- Tests ---

func TestCreateIntent_DiscountedTotalWithDelivery(t *testing.T) {
	baskets, catalog, deliveries, discounts := discountedBasket()
	provider := &mockProvider{nextID: "pi_123"}
	c := testCoordinator(baskets, catalog, deliveries, discounts, provider)

	// 2 x (100.00 at 10% off) + 10.00 delivery = 190.00
	b, err := c.CreateOrUpdateIntent(context.Background(), "b1", "express")

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("190.00").Equal(b.Total), "total = %s", b.Total)
	assert.True(t, decimal.RequireFromString("20.00").Equal(b.DiscountValue), "discount = %s", b.DiscountValue)
	assert.Equal(t, "pi_123", b.PaymentIntentID)
	assert.Equal(t, "pi_123_secret", b.ClientSecret)

	require.Len(t, provider.creates, 1)
	assert.True(t, decimal.RequireFromString("190.00").Equal(provider.creates[0].amount))
	assert.Equal(t, "usd", provider.creates[0].currency)

	stored, err := baskets.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", stored.PaymentIntentID)
}

func TestCreateIntent_SecondCallUpdatesSameIntent(t *testing.T) {
	baskets, catalog, deliveries, discounts := discountedBasket()
	provider := &mockProvider{nextID: "pi_123"}
	c := testCoordinator(baskets, catalog, deliveries, discounts, provider)

	_, err := c.CreateOrUpdateIntent(context.Background(), "b1", "express")
	require.NoError(t, err)

	b, err := c.CreateOrUpdateIntent(context.Background(), "b1", "")
	require.NoError(t, err)

	assert.Equal(t, "pi_123", b.PaymentIntentID)
	require.Len(t, provider.creates, 1)
	require.Len(t, provider.updates, 1)
	assert.Equal(t, "pi_123", provider.updates[0].intentID)
	// Without delivery the amount drops to the goods total.
	assert.True(t, decimal.RequireFromString("180.00").Equal(provider.updates[0].amount))
}

func TestCreateIntent_ProviderFailureLeavesBasketUntouched(t *testing.T) {
	baskets, catalog, deliveries, discounts := discountedBasket()
	provider := &mockProvider{err: ErrExternal}
	c := testCoordinator(baskets, catalog, deliveries, discounts, provider)

	_, err := c.CreateOrUpdateIntent(context.Background(), "b1", "express")
	require.ErrorIs(t, err, ErrExternal)

	stored, err := baskets.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, stored.PaymentIntentID)
	assert.Empty(t, stored.ClientSecret)
	assert.True(t, stored.Total.IsZero())
}

func TestCreateIntent_BasketNotFound(t *testing.T) {
	_, catalog, deliveries, discounts := discountedBasket()
	c := testCoordinator(newBasketStore(), catalog, deliveries, discounts, &mockProvider{})

	_, err := c.CreateOrUpdateIntent(context.Background(), "missing", "")
	require.ErrorIs(t, err, basket.ErrNotFound)
}

func TestCreateIntent_UnknownDeliveryMethod(t *testing.T) {
	baskets, catalog, deliveries, discounts := discountedBasket()
	provider := &mockProvider{}
	c := testCoordinator(baskets, catalog, deliveries, discounts, provider)

	_, err := c.CreateOrUpdateIntent(context.Background(), "b1", "drone")
	require.ErrorIs(t, err, delivery.ErrNotFound)
	assert.Empty(t, provider.creates)
}

func TestCreateIntent_VanishedProduct(t *testing.T) {
	baskets, _, deliveries, discounts := discountedBasket()
	provider := &mockProvider{}
	c := testCoordinator(baskets, newCatalog(), deliveries, discounts, provider)

	_, err := c.CreateOrUpdateIntent(context.Background(), "b1", "express")
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Empty(t, provider.creates)
}
