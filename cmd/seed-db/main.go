// Command seed-db applies migrations and loads demo catalog data: products,
// delivery methods and a couple of discount codes to exercise the checkout
// flow locally.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/postgres"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, category_id, brand_id, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			category_id = EXCLUDED.category_id, brand_id = EXCLUDED.brand_id,
			image = EXCLUDED.image`

	upsertDeliverySQL = `INSERT INTO delivery_methods (id, name, price, eta)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, eta = EXCLUDED.eta`

	upsertDiscountSQL = `INSERT INTO discounts (code, scope_type, scope_id, percentage, starts_at, ends_at, max_uses)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			scope_type = EXCLUDED.scope_type, scope_id = EXCLUDED.scope_id,
			percentage = EXCLUDED.percentage, starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at, max_uses = EXCLUDED.max_uses`
)

type productRow struct {
	id, name, categoryID, brandID, image string
	price                                decimal.Decimal
}

type deliveryRow struct {
	id, name, eta string
	price         decimal.Decimal
}

type discountRow struct {
	code, scopeType, scopeID string
	percentage               decimal.Decimal
	startsAt                 time.Time
	endsAt                   *time.Time
	maxUses                  int
}

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedDeliveryMethods(ctx, pool); err != nil {
		return errors.Wrap(err, "seed delivery methods")
	}
	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	products := []productRow{
		{id: "prod-espresso-machine", name: "Espresso Machine", price: decimal.NewFromFloat(249.90), categoryID: "cat-kitchen", brandID: "brand-brewline", image: "espresso-machine.jpg"},
		{id: "prod-burr-grinder", name: "Burr Coffee Grinder", price: decimal.NewFromFloat(89.00), categoryID: "cat-kitchen", brandID: "brand-brewline", image: "burr-grinder.jpg"},
		{id: "prod-chef-knife", name: "Chef Knife 20cm", price: decimal.NewFromFloat(64.50), categoryID: "cat-kitchen", brandID: "brand-steelcraft", image: "chef-knife.jpg"},
		{id: "prod-running-shoes", name: "Trail Running Shoes", price: decimal.NewFromFloat(129.99), categoryID: "cat-sport", brandID: "brand-stride", image: "running-shoes.jpg"},
		{id: "prod-yoga-mat", name: "Yoga Mat", price: decimal.NewFromFloat(34.00), categoryID: "cat-sport", brandID: "brand-stride", image: "yoga-mat.jpg"},
		{id: "prod-water-bottle", name: "Insulated Water Bottle", price: decimal.NewFromFloat(24.90), categoryID: "cat-sport", brandID: "brand-hydro", image: "water-bottle.jpg"},
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.id, p.name, p.price, p.categoryID, p.brandID, p.image); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
		slog.Info("upserted product", slog.String("id", p.id), slog.String("name", p.name))
	}
	return nil
}

func seedDeliveryMethods(ctx context.Context, pool *pgxpool.Pool) error {
	methods := []deliveryRow{
		{id: "standard", name: "Standard Delivery", price: decimal.NewFromFloat(4.90), eta: "3-5 business days"},
		{id: "express", name: "Express Delivery", price: decimal.NewFromFloat(10.00), eta: "1-2 business days"},
		{id: "pickup", name: "Store Pickup", price: decimal.Zero, eta: "same day"},
	}

	slog.Info("upserting delivery methods", slog.Int("count", len(methods)))

	for _, m := range methods {
		if _, err := pool.Exec(ctx, upsertDeliverySQL, m.id, m.name, m.price, m.eta); err != nil {
			return errors.Wrapf(err, "upsert delivery method %s", m.id)
		}
		slog.Info("upserted delivery method", slog.String("id", m.id))
	}
	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now().UTC().Truncate(time.Hour)
	monthOut := now.AddDate(0, 1, 0)

	discounts := []discountRow{
		{code: "WELCOME10", scopeType: "global", percentage: decimal.NewFromInt(10), startsAt: now},
		{code: "KITCHEN25", scopeType: "category", scopeID: "cat-kitchen", percentage: decimal.NewFromInt(25), startsAt: now, endsAt: &monthOut},
		{code: "STRIDE15", scopeType: "brand", scopeID: "brand-stride", percentage: decimal.NewFromInt(15), startsAt: now, maxUses: 100},
		{code: "MATLOVER", scopeType: "product", scopeID: "prod-yoga-mat", percentage: decimal.NewFromInt(30), startsAt: now, maxUses: 1},
	}

	slog.Info("upserting discounts", slog.Int("count", len(discounts)))

	for _, d := range discounts {
		if _, err := pool.Exec(ctx, upsertDiscountSQL, d.code, d.scopeType, d.scopeID, d.percentage, d.startsAt, d.endsAt, d.maxUses); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.code)
		}
		slog.Info("upserted discount", slog.String("code", d.code), slog.String("scope", d.scopeType))
	}
	return nil
}
