package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id, status, currency, subtotal, shipping_cost, discount,
	points_redeemed, total, charge_amount, charge_currency, shipping_address, shipping_method,
	payment_method, payment_reference, idempotency_key, COALESCE(guest_email, ''), COALESCE(guest_phone, ''),
	COALESCE(contact_first, ''), COALESCE(contact_last, ''), COALESCE(cancel_reason, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.Currency, &o.Subtotal, &o.ShippingCost, &o.Discount,
		&o.PointsRedeemed, &o.Total, &o.ChargeAmount, &o.ChargeCurrency, &o.ShippingAddress, &o.ShippingMethod,
		&o.PaymentMethod, &o.PaymentReference, &o.IdempotencyKey, &o.Contact.Email, &o.Contact.Phone,
		&o.Contact.FirstName, &o.Contact.LastName, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Insert writes the order, its item snapshot and the first history row atomically.
// A reused idempotency key surfaces as ErrDuplicateOrder.
func (r *Repo) Insert(ctx context.Context, o Order) error {
	if len(o.Items) == 0 {
		return errors.New("orders.Insert: no items in order")
	}

	err := postgres.WithTx(ctx, r.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders(id, order_number, user_id, status, currency, subtotal, shipping_cost, discount,
				points_redeemed, total, charge_amount, charge_currency, shipping_address, shipping_method,
				payment_method, payment_reference, idempotency_key, guest_email, guest_phone, contact_first, contact_last)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			o.ID, o.Number, o.UserID, o.Status, o.Currency, o.Subtotal, o.ShippingCost, o.Discount,
			o.PointsRedeemed, o.Total, o.ChargeAmount, o.ChargeCurrency, o.ShippingAddress, o.ShippingMethod,
			o.PaymentMethod, o.PaymentReference, o.IdempotencyKey,
			lo.EmptyableToPtr(o.Contact.Email), lo.EmptyableToPtr(o.Contact.Phone),
			lo.EmptyableToPtr(o.Contact.FirstName), lo.EmptyableToPtr(o.Contact.LastName))
		if err != nil {
			return err
		}

		for _, it := range o.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(order_id, variant_id, sku, quantity, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				o.ID, it.VariantID, it.SKU, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `INSERT INTO order_status_history(order_id, from_status, to_status, reason)
			VALUES ($1, NULL, $2, 'checkout')`, o.ID, o.Status)
		return err
	})
	if postgres.IsUniqueViolation(err, "orders_idempotency_key_key") {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("orders.Insert: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return r.getBy(ctx, "id", id)
}

func (r *Repo) GetByReference(ctx context.Context, reference string) (Order, error) {
	return r.getBy(ctx, "payment_reference", reference)
}

func (r *Repo) getBy(ctx context.Context, column string, v any) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1`, v))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders.Get by %s: %w", column, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT variant_id, sku, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY sku`, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("orders.Get items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariantID, &it.SKU, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return Order{}, fmt.Errorf("orders.Get items scan: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// CompareAndSetStatus moves the order to `to` only if its current status is in
// `from`. When it is not, the order is returned untouched with ok=false.
func (r *Repo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, reason string) (Order, bool, error) {
	var applied bool
	err := postgres.WithRetry(ctx, r.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		applied = false

		var current Status
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if !lo.Contains(from, current) {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, updated_at = now(),
				cancel_reason = CASE WHEN $2 = 'cancelled' THEN $3 ELSE cancel_reason END
			WHERE id = $1`, id, to, reason); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO order_status_history(order_id, from_status, to_status, reason)
			VALUES ($1, $2, $3, $4)`, id, current, to, reason); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, ErrOrderNotFound) {
		return Order{}, false, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("orders.CompareAndSetStatus: %w", err)
	}

	o, err := r.Get(ctx, id)
	return o, applied, err
}

// ListPendingBefore returns pending_payment orders created before cutoff, oldest first.
func (r *Repo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = 'pending_payment' AND created_at < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("orders.ListPendingBefore: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orders.ListPendingBefore scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AttachAccount links a guest order to an account. Orders that already have an owner are left alone.
func (r *Repo) AttachAccount(ctx context.Context, orderID, accountID uuid.UUID) error {
	if _, err := r.DB.Exec(ctx, `UPDATE orders SET user_id = $2, updated_at = now()
		WHERE id = $1 AND user_id IS NULL`, orderID, accountID); err != nil {
		return fmt.Errorf("orders.AttachAccount: %w", err)
	}
	return nil
}

// History returns the status trail of an order, oldest first.
func (r *Repo) History(ctx context.Context, orderID uuid.UUID) ([]Status, error) {
	rows, err := r.DB.Query(ctx, `SELECT to_status FROM order_status_history WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders.History: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[Status])
}

// ClearIdempotencyKey frees the key of a failed checkout's order so a retry
// with the same key can create a new one.
func (r *Repo) ClearIdempotencyKey(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.DB.Exec(ctx, `UPDATE orders SET idempotency_key = NULL, updated_at = now()
		WHERE id = $1 AND status = 'cancelled'`, orderID); err != nil {
		return fmt.Errorf("orders.ClearIdempotencyKey: %w", err)
	}
	return nil
}
