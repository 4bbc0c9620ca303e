package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres"
)

type Store struct{ DB *pgxpool.Pool }

const cartColumns = `id, user_id, COALESCE(guest_token, ''), status, created_at, updated_at`

// Resolve returns the caller's active cart with its items. A missing,
// consumed or empty cart is ErrCartNotFound.
func (s *Store) Resolve(ctx context.Context, ref Ref) (Cart, error) {
	c, err := s.active(ctx, s.DB, ref)
	if err != nil {
		return Cart{}, err
	}
	if len(c.Items) == 0 {
		return Cart{}, ErrCartNotFound
	}
	return c, nil
}

// Get is Resolve without the non-empty requirement.
func (s *Store) Get(ctx context.Context, ref Ref) (Cart, error) {
	return s.active(ctx, s.DB, ref)
}

func (s *Store) active(ctx context.Context, db postgres.DBTX, ref Ref) (Cart, error) {
	var row pgx.Row
	switch {
	case ref.UserID != nil:
		row = db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1 AND status = 'active'`, *ref.UserID)
	case ref.GuestToken != "":
		row = db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE guest_token = $1 AND status = 'active'`, ref.GuestToken)
	case ref.CartID != nil:
		row = db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 AND status = 'active'`, *ref.CartID)
	default:
		return Cart{}, ErrCartNotFound
	}

	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.GuestToken, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("cart.Resolve: %w", err)
	}

	rows, err := db.Query(ctx, `
		SELECT ci.id, ci.variant_id, v.sku, ci.quantity, ci.unit_price
		FROM cart_items ci JOIN product_variants v ON v.id = ci.variant_id
		WHERE ci.cart_id = $1 ORDER BY ci.created_at, v.sku`, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("cart.Resolve items: %w", err)
	}
	defer rows.Close()

	c.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.VariantID, &it.SKU, &it.Quantity, &it.UnitPrice); err != nil {
			return Cart{}, fmt.Errorf("cart.Resolve scan: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// AddItem puts qty of a variant into the caller's cart, creating the cart on
// first use. The variant's current NGN price is captured; adding a variant
// that is already in the cart increases its quantity and keeps the old price.
func (s *Store) AddItem(ctx context.Context, ref Ref, variantID uuid.UUID, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, ErrInvalidQuantity
	}
	if ref.UserID == nil && ref.GuestToken == "" {
		return Cart{}, ErrNoOwner
	}

	err := postgres.WithRetry(ctx, s.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		cartID, err := s.ensure(ctx, tx, ref)
		if err != nil {
			return err
		}

		var price decimal.Decimal
		err = tx.QueryRow(ctx, `SELECT price_ngn FROM product_variants WHERE id = $1`, variantID).Scan(&price)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVariantNotFound
		}
		if err != nil {
			return fmt.Errorf("cart.AddItem price: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_items(id, cart_id, variant_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (cart_id, variant_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			uuid.New(), cartID, variantID, qty, price); err != nil {
			return fmt.Errorf("cart.AddItem insert: %w", err)
		}
		_, err = tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, ref)
}

func (s *Store) ensure(ctx context.Context, tx pgx.Tx, ref Ref) (uuid.UUID, error) {
	var guest *string
	if ref.UserID == nil {
		guest = lo.ToPtr(ref.GuestToken)
	}

	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO carts(id, user_id, guest_token) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id`, uuid.New(), ref.UserID, guest).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("cart.ensure: %w", err)
	}

	c, err := s.active(ctx, tx, Ref{UserID: ref.UserID, GuestToken: ref.GuestToken})
	if err != nil {
		return uuid.Nil, err
	}
	return c.ID, nil
}

// UpdateItem sets an item's quantity; zero removes it.
func (s *Store) UpdateItem(ctx context.Context, ref Ref, itemID uuid.UUID, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveItem(ctx, ref, itemID)
	}

	c, err := s.Get(ctx, ref)
	if err != nil {
		return Cart{}, err
	}
	ct, err := s.DB.Exec(ctx, `UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`, qty, itemID, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("cart.UpdateItem: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return Cart{}, ErrItemNotFound
	}
	return s.Get(ctx, ref)
}

func (s *Store) RemoveItem(ctx context.Context, ref Ref, itemID uuid.UUID) (Cart, error) {
	c, err := s.Get(ctx, ref)
	if err != nil {
		return Cart{}, err
	}
	ct, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("cart.RemoveItem: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return Cart{}, ErrItemNotFound
	}
	return s.Get(ctx, ref)
}

// MarkConsumed closes an active cart for the given order. Only one caller can
// consume a cart; the loser gets ErrCartNotFound.
func (s *Store) MarkConsumed(ctx context.Context, cartID, orderID uuid.UUID) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE carts SET status = 'consumed', consumed_order_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'active'`, cartID, orderID)
	if err != nil {
		return fmt.Errorf("cart.MarkConsumed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}
