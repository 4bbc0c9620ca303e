package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const variantColumns = `v.id, v.product_id, v.sku, v.price_ngn, v.price_usd, v.attributes, v.weight_g, COALESCE(i.quantity, 0)`

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.PriceNGN, &v.PriceUSD, &v.Attributes, &v.WeightG, &v.Quantity)
	if v.Attributes == nil {
		v.Attributes = map[string]string{}
	}
	return v, err
}

// GetProduct loads a product with its variants and computes the rollup from live inventory.
func (r *Repo) GetProduct(ctx context.Context, id uuid.UUID) (ProductView, error) {
	var pv ProductView
	err := r.DB.QueryRow(ctx, `SELECT id, name, slug, created_at FROM products WHERE id=$1`, id).
		Scan(&pv.ID, &pv.Name, &pv.Slug, &pv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductView{}, ErrProductNotFound
	}
	if err != nil {
		return ProductView{}, fmt.Errorf("catalog.GetProduct: %w", err)
	}

	rows, err := r.DB.Query(ctx, `SELECT `+variantColumns+`
		FROM product_variants v LEFT JOIN inventory i ON i.variant_id = v.id
		WHERE v.product_id = $1 ORDER BY v.position, v.created_at`, id)
	if err != nil {
		return ProductView{}, fmt.Errorf("catalog.GetProduct variants: %w", err)
	}
	defer rows.Close()

	pv.Variants = []Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return ProductView{}, fmt.Errorf("catalog.GetProduct scan: %w", err)
		}
		pv.Variants = append(pv.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return ProductView{}, fmt.Errorf("catalog.GetProduct rows: %w", err)
	}

	pv.Rollup = Roll(pv.Variants)
	return pv, nil
}

// Variants returns the requested variants keyed by id; unknown ids are simply absent.
func (r *Repo) Variants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Variant, error) {
	out := make(map[uuid.UUID]Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+variantColumns+`
		FROM product_variants v LEFT JOIN inventory i ON i.variant_id = v.id
		WHERE v.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog.Variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog.Variants scan: %w", err)
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}
