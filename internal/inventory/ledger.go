package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres"
)

// Ledger is the only writer of inventory quantities. Every mutation locks the
// variant's row for the length of one short transaction.
type Ledger struct {
	DB     *pgxpool.Pool
	Logger *slog.Logger
}

func (l *Ledger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Ledger) Adjust(ctx context.Context, adj Adjustment) (Record, error) {
	if err := validate(adj); err != nil {
		return Record{}, err
	}

	var rec Record
	err := postgres.WithRetry(ctx, l.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		rec, err = adjustTx(ctx, tx, adj)
		return err
	})
	if err != nil {
		return Record{}, err
	}

	l.logger().Info("inventory adjusted",
		slog.String("action", "inventory.adjust"),
		slog.String("variant_id", rec.VariantID.String()),
		slog.String("mode", string(adj.Mode)),
		slog.Int("amount", adj.Amount),
		slog.Int("quantity", rec.Quantity),
		slog.Bool("low_stock", rec.IsLowStock))
	return rec, nil
}

func validate(adj Adjustment) error {
	switch adj.Mode {
	case ModeAbsolute:
		if adj.Amount < 0 {
			return fmt.Errorf("%w: absolute quantity %d is negative", ErrInvalidQuantity, adj.Amount)
		}
	case ModeDelta:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidQuantity, adj.Mode)
	}
	if adj.LowStockThreshold != nil && *adj.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low stock threshold %d is negative", ErrInvalidQuantity, *adj.LowStockThreshold)
	}
	return nil
}

// adjustTx creates the inventory row on first use, locks it, and writes the
// new quantity plus an audit row. The caller owns the transaction.
func adjustTx(ctx context.Context, tx pgx.Tx, adj Adjustment) (Record, error) {
	if err := validate(adj); err != nil {
		return Record{}, err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO inventory(variant_id, quantity, low_stock_threshold)
		SELECT id, 0, $2 FROM product_variants WHERE id = $1
		ON CONFLICT (variant_id) DO NOTHING`, adj.VariantID, DefaultLowStockThreshold)
	if err != nil {
		return Record{}, fmt.Errorf("inventory.adjust ensure: %w", err)
	}

	rec := Record{VariantID: adj.VariantID}
	err = tx.QueryRow(ctx, `
		SELECT v.sku, i.quantity, i.low_stock_threshold
		FROM inventory i JOIN product_variants v ON v.id = i.variant_id
		WHERE i.variant_id = $1
		FOR UPDATE OF i`, adj.VariantID).Scan(&rec.SKU, &rec.Quantity, &rec.LowStockThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrVariantNotFound, adj.VariantID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("inventory.adjust lock: %w", err)
	}

	old := rec.Quantity
	switch adj.Mode {
	case ModeAbsolute:
		rec.Quantity = adj.Amount
	case ModeDelta:
		if old+adj.Amount < 0 {
			return Record{}, fmt.Errorf("%w: variant %s has %d, delta %d", ErrInsufficientStock, adj.VariantID, old, adj.Amount)
		}
		rec.Quantity = old + adj.Amount
	}
	if adj.LowStockThreshold != nil {
		rec.LowStockThreshold = *adj.LowStockThreshold
	}
	rec.recompute()

	err = tx.QueryRow(ctx, `
		UPDATE inventory SET quantity = $2, low_stock_threshold = $3, updated_at = now()
		WHERE variant_id = $1
		RETURNING updated_at`, adj.VariantID, rec.Quantity, rec.LowStockThreshold).Scan(&rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("inventory.adjust update: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_adjustments(variant_id, old_quantity, new_quantity, reason)
		VALUES ($1, $2, $3, $4)`, adj.VariantID, old, rec.Quantity, adj.Reason); err != nil {
		return Record{}, fmt.Errorf("inventory.adjust audit: %w", err)
	}
	return rec, nil
}

// Get never creates a row: a variant without inventory reads as zero stock at the default threshold.
func (l *Ledger) Get(ctx context.Context, variantID uuid.UUID) (Record, error) {
	rec := Record{VariantID: variantID}
	err := l.DB.QueryRow(ctx, `
		SELECT v.sku, COALESCE(i.quantity, 0), COALESCE(i.low_stock_threshold, $2), COALESCE(i.updated_at, v.created_at)
		FROM product_variants v LEFT JOIN inventory i ON i.variant_id = v.id
		WHERE v.id = $1`, variantID, DefaultLowStockThreshold).
		Scan(&rec.SKU, &rec.Quantity, &rec.LowStockThreshold, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("inventory.Get: %w", err)
	}
	rec.recompute()
	return rec, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// List pages through inventory records ordered by SKU.
func (l *Ledger) List(ctx context.Context, f Filter) (Page, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	after, err := decodeCursor(f.Cursor)
	if err != nil {
		return Page{}, err
	}

	rows, err := l.DB.Query(ctx, `
		SELECT i.variant_id, v.sku, i.quantity, i.low_stock_threshold, i.updated_at
		FROM inventory i JOIN product_variants v ON v.id = i.variant_id
		WHERE v.sku > $1
		  AND ($2::text = '' OR v.sku LIKE $2 || '%')
		  AND (NOT $3 OR i.quantity <= i.low_stock_threshold)
		ORDER BY v.sku
		LIMIT $4`, after.SKU, f.SKU, f.LowStockOnly, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("inventory.List: %w", err)
	}
	defer rows.Close()

	page := Page{Items: make([]Record, 0, limit)}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.VariantID, &rec.SKU, &rec.Quantity, &rec.LowStockThreshold, &rec.UpdatedAt); err != nil {
			return Page{}, fmt.Errorf("inventory.List scan: %w", err)
		}
		rec.recompute()
		page.Items = append(page.Items, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("inventory.List rows: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasMore = true
		page.NextCursor = encodeCursor(listCursor{SKU: page.Items[limit-1].SKU})
	}
	return page, nil
}
