package pgtest

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type VariantSeed struct {
	ProductID  uuid.UUID
	SKU        string
	PriceNGN   decimal.Decimal
	PriceUSD   *decimal.Decimal
	Attributes map[string]string
	Quantity   *int // nil leaves the variant without an inventory row
	Threshold  int
}

// SeedProduct inserts a product and returns its id.
func SeedProduct(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	name := gofakeit.ProductName()
	_, err := pool.Exec(ctx, `INSERT INTO products(id, name, slug) VALUES ($1, $2, $3)`,
		id, name, fmt.Sprintf("%s-%s", gofakeit.Word(), id.String()[:8]))
	return id, err
}

// SeedVariant inserts a variant (creating a product when ProductID is zero) and its inventory row.
func SeedVariant(ctx context.Context, pool *pgxpool.Pool, s VariantSeed) (uuid.UUID, error) {
	if s.ProductID == uuid.Nil {
		pid, err := SeedProduct(ctx, pool)
		if err != nil {
			return uuid.Nil, err
		}
		s.ProductID = pid
	}
	if s.SKU == "" {
		s.SKU = fmt.Sprintf("SKU-%s", gofakeit.LetterN(10))
	}
	if s.PriceNGN.IsZero() {
		s.PriceNGN = decimal.NewFromFloat(gofakeit.Price(5000, 90000)).Round(2)
	}
	if s.Attributes == nil {
		s.Attributes = map[string]string{"color": gofakeit.SafeColor()}
	}

	id := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO product_variants(id, product_id, sku, price_ngn, price_usd, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, s.ProductID, s.SKU, s.PriceNGN, s.PriceUSD, s.Attributes); err != nil {
		return uuid.Nil, err
	}

	if s.Quantity != nil {
		if _, err := pool.Exec(ctx, `
			INSERT INTO inventory(variant_id, quantity, low_stock_threshold) VALUES ($1, $2, $3)`,
			id, *s.Quantity, s.Threshold); err != nil {
			return uuid.Nil, err
		}
	}
	return id, nil
}

// SeedAccount inserts an account row and returns its id.
func SeedAccount(ctx context.Context, pool *pgxpool.Pool, email string, points int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO app_users(id, email, password_hash, loyalty_points) VALUES ($1, $2, 'x', $3)`,
		id, email, points)
	return id, err
}
