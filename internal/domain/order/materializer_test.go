package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veloshop/checkout/internal/domain/basket"
	"github.com/veloshop/checkout/internal/domain/delivery"
	"github.com/veloshop/checkout/internal/domain/discount"
	"github.com/veloshop/checkout/internal/domain/payment"
	"github.com/veloshop/checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockBasketStore struct {
	mu      sync.Mutex
	baskets map[string]*basket.Basket
	delErr  error
	deleted []string
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
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.baskets[b.ID] = &cp
	return nil
}

func (m *mockBasketStore) Delete(_ context.Context, id string) error {
	if m.delErr != nil {
		return m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.baskets, id)
	m.deleted = append(m.deleted, id)
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

func (m *mockCatalog) List(_ context.Context) ([]product.Product, error) { return nil, nil }

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
	mu     sync.Mutex
	byCode map[string]*discount.Discount
}

func (m *mockDiscountStore) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byCode[code]
	if !ok {
		return nil, discount.ErrInvalidOrInactive
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiscountStore) IncrementUsageIfBelowCap(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byCode[code]
	if !ok {
		return false, nil
	}
	if d.UsageCap > 0 && d.UsageCount >= d.UsageCap {
		return false, nil
	}
	d.UsageCount++
	return true, nil
}

func (m *mockDiscountStore) DecrementUsage(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byCode[code]; ok && d.UsageCount > 0 {
		d.UsageCount--
	}
	return nil
}

func (m *mockDiscountStore) usageCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCode[code].UsageCount
}

type mockOrderRepo struct {
	mu        sync.Mutex
	byID      map[string]*Order
	insertErr error
}

func newOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[string]*Order)}
	for _, o := range orders {
		cp := *o
		m.byID[o.ID] = &cp
	}
	return m
}

func (m *mockOrderRepo) Insert(_ context.Context, o *Order) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) FindByPaymentIntentID(_ context.Context, intentID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.PaymentIntentID == intentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *mockOrderRepo) UpdateStatusByIntentID(_ context.Context, intentID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.PaymentIntentID == intentID {
			o.Status = status
		}
	}
	return nil
}

func (m *mockOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type mockProvider struct {
	mu      sync.Mutex
	seq     int
	creates int
	updates int
}

func (m *mockProvider) CreateIntent(_ context.Context, _ decimal.Decimal, _ string) (*payment.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.creates++
	id := fmt.Sprintf("pi_%d", m.seq)
	return &payment.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (m *mockProvider) UpdateIntent(_ context.Context, intentID string, _ decimal.Decimal) (*payment.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return &payment.Intent{ID: intentID, ClientSecret: intentID + "_secret"}, nil
}

// --- Fixture ---

type fixture struct {
	baskets   *mockBasketStore
	catalog   *mockCatalog
	discounts *mockDiscountStore
	orders    *mockOrderRepo
	provider  *mockProvider
	mat       *Materializer
}

func validAddress() Address {
	return Address{
		FullName:   "Ada Lovelace",
		Line1:      "12 Analytical Row",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "GB",
	}
}

func validBuyer() Buyer {
	return Buyer{Email: "ada@example.com", Name: "Ada Lovelace"}
}

// newFixture builds a materializer over a basket holding two widgets at
// 100.00 with a 10% code and an express delivery method at 10.00.
func newFixture(t *testing.T, baskets ...*basket.Basket) *fixture {
	t.Helper()

	widget := product.Product{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("100.00")}
	if len(baskets) == 0 {
		baskets = []*basket.Basket{{
			ID:           "b1",
			DiscountCode: "SAVE10",
			Items: []basket.LineItem{
				{ProductID: "p1", Name: "Widget", UnitPrice: widget.Price, Quantity: 2},
			},
		}}
	}

	f := &fixture{
		baskets: newBasketStore(baskets...),
		catalog: newCatalog(widget),
		discounts: &mockDiscountStore{byCode: map[string]*discount.Discount{
			"SAVE10": {
				Code:       "SAVE10",
				Scope:      discount.ScopeGlobal,
				Percentage: decimal.NewFromInt(10),
				StartsAt:   time.Now().Add(-time.Hour),
			},
		}},
		orders:   newOrderRepo(),
		provider: &mockProvider{},
	}

	deliveries := &mockDeliveries{byID: map[string]delivery.Method{
		"express": {ID: "express", Name: "Express", Price: decimal.RequireFromString("10.00"), ETA: "1-2 days"},
	}}
	resolver := discount.NewResolver(f.discounts)
	coordinator := payment.NewCoordinator(f.baskets, f.catalog, deliveries, resolver, f.provider, "usd")
	f.mat = NewMaterializer(
		f.baskets, f.catalog, deliveries, f.discounts, resolver, f.orders, coordinator, zap.NewNop(),
	)
	return f
}

// --- Tests ---

func TestCreateOrder_FullCheckout(t *testing.T) {
	f := newFixture(t)

	// 2 x (100.00 at 10% off) + 10.00 delivery = 190.00
	o, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("200.00").Equal(o.Subtotal), "subtotal = %s", o.Subtotal)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.Discount.Value), "discount = %s", o.Discount.Value)
	assert.True(t, decimal.RequireFromString("190.00").Equal(o.Total), "total = %s", o.Total)
	assert.Equal(t, "SAVE10", o.Discount.Code)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "ada@example.com", o.BuyerEmail)
	assert.NotEmpty(t, o.ID)
	assert.NotEmpty(t, o.PaymentIntentID)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].Name)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Items[0].UnitPrice))

	assert.Equal(t, "express", o.Delivery.MethodID)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Delivery.Price))

	// The basket is gone and the order is persisted.
	_, err = f.baskets.Get(context.Background(), "b1")
	assert.ErrorIs(t, err, basket.ErrNotFound)
	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, 1, f.discounts.usageCount("SAVE10"))
}

func TestCreateOrder_LiveCatalogPriceWins(t *testing.T) {
	f := newFixture(t, &basket.Basket{
		ID: "b1",
		Items: []basket.LineItem{
			// Snapshot price is stale; the catalog now says 100.00.
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("80.00"), Quantity: 1},
		},
	})

	o, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("110.00").Equal(o.Total))
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Items[0].UnitPrice))
}

func TestCreateOrder_SupersedesStaleOrderOnSameIntent(t *testing.T) {
	f := newFixture(t, &basket.Basket{
		ID:              "b1",
		DiscountCode:    "SAVE10",
		PaymentIntentID: "pi_123",
		ClientSecret:    "pi_123_secret",
		Items: []basket.LineItem{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 2},
		},
	})
	stale := &Order{
		ID:              "stale-order",
		PaymentIntentID: "pi_123",
		Status:          StatusPending,
		Total:           decimal.RequireFromString("190.00"),
	}
	require.NoError(t, f.orders.Insert(context.Background(), stale))

	o, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.NoError(t, err)
	assert.NotEqual(t, "pi_123", o.PaymentIntentID)

	// Exactly one order remains, bound to the fresh intent.
	assert.Equal(t, 1, f.orders.count())
	found, err := f.orders.FindByPaymentIntentID(context.Background(), o.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)
	_, err = f.orders.FindByPaymentIntentID(context.Background(), "pi_123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_ConcurrentCheckoutsShareOneCap(t *testing.T) {
	b1 := &basket.Basket{
		ID:           "b1",
		DiscountCode: "SAVE10",
		Items: []basket.LineItem{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 1},
		},
	}
	b2 := &basket.Basket{
		ID:           "b2",
		DiscountCode: "SAVE10",
		Items: []basket.LineItem{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 1},
		},
	}
	f := newFixture(t, b1, b2)
	f.discounts.byCode["SAVE10"].UsageCap = 1

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"b1", "b2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.mat.CreateOrder(context.Background(), id, "express", validAddress(), validBuyer())
		}(i, id)
	}
	wg.Wait()

	var succeeded, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, discount.ErrExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, 1, f.discounts.usageCount("SAVE10"))
}

func TestCreateOrder_InsertFailureRollsBackUsage(t *testing.T) {
	f := newFixture(t)
	f.orders.insertErr = errors.New("db write failed")

	_, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert order")
	assert.Equal(t, 0, f.discounts.usageCount("SAVE10"))
	// The basket survives for a retry.
	_, err = f.baskets.Get(context.Background(), "b1")
	assert.NoError(t, err)
}

func TestCreateOrder_BasketDeletionFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.baskets.delErr = errors.New("redis down")

	o, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.NoError(t, err)
	assert.Equal(t, 1, f.orders.count())
	assert.NotEmpty(t, o.ID)
}

func TestCreateOrder_MissingBasket(t *testing.T) {
	f := newFixture(t)

	_, err := f.mat.CreateOrder(context.Background(), "missing", "express", validAddress(), validBuyer())
	require.ErrorIs(t, err, basket.ErrNotFound)
}

func TestCreateOrder_VanishedProduct(t *testing.T) {
	f := newFixture(t)
	delete(f.catalog.byID, "p1")

	_, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Equal(t, 0, f.orders.count())
}

func TestCreateOrder_UnknownDeliveryMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.mat.CreateOrder(context.Background(), "b1", "drone", validAddress(), validBuyer())
	require.ErrorIs(t, err, delivery.ErrNotFound)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		delivery string
		shipTo   Address
		buyer    Buyer
		wantErr  error
	}{
		{
			name:     "no buyer",
			delivery: "express",
			shipTo:   validAddress(),
			wantErr:  ErrBuyerRequired,
		},
		{
			name:    "no delivery method",
			shipTo:  validAddress(),
			buyer:   validBuyer(),
			wantErr: ErrDeliveryRequired,
		},
		{
			name:     "incomplete address",
			delivery: "express",
			shipTo:   Address{FullName: "Ada Lovelace", City: "London"},
			buyer:    validBuyer(),
			wantErr:  ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mat.CreateOrder(context.Background(), "b1", tt.delivery, tt.shipTo, tt.buyer)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateOrder_EmptyBasket(t *testing.T) {
	f := newFixture(t, &basket.Basket{ID: "b1"})

	_, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())
	require.ErrorIs(t, err, ErrEmptyBasket)
}

func TestCreateOrder_TakesLastCapSlot(t *testing.T) {
	f := newFixture(t)
	f.discounts.byCode["SAVE10"].UsageCap = 3
	f.discounts.byCode["SAVE10"].UsageCount = 2

	o, err := f.mat.CreateOrder(context.Background(), "b1", "express", validAddress(), validBuyer())

	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 3, f.discounts.usageCount("SAVE10"))
}
