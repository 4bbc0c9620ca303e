package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres"
)

// Reserve takes qty units of a variant for an order through a negative delta
// adjust and records the reservation in the same transaction. Reserving the
// same (order, variant) twice is a no-op.
func (l *Ledger) Reserve(ctx context.Context, orderID, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve %d", ErrInvalidQuantity, qty)
	}

	return postgres.WithRetry(ctx, l.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, variant_id, qty, status)
			VALUES ($1, $2, $3, 'RESERVED')
			ON CONFLICT (order_id, variant_id) DO NOTHING`, orderID, variantID, qty)
		if err != nil {
			return fmt.Errorf("inventory.Reserve insert: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return nil
		}

		_, err = adjustTx(ctx, tx, Adjustment{
			VariantID: variantID,
			Amount:    -qty,
			Mode:      ModeDelta,
			Reason:    "reserve:" + orderID.String(),
		})
		return err
	})
}

// ReleaseOrder returns every still-RESERVED unit of an order to stock and marks
// the reservations RELEASED. Calling it again releases nothing.
func (l *Ledger) ReleaseOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	var released int
	err := postgres.WithRetry(ctx, l.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		released = 0

		rows, err := tx.Query(ctx, `
			SELECT variant_id, qty FROM reservations
			WHERE order_id = $1 AND status = 'RESERVED'
			ORDER BY variant_id
			FOR UPDATE`, orderID)
		if err != nil {
			return fmt.Errorf("inventory.ReleaseOrder select: %w", err)
		}

		type rec struct {
			variantID uuid.UUID
			qty       int
		}
		var recs []rec
		for rows.Next() {
			var x rec
			if err := rows.Scan(&x.variantID, &x.qty); err != nil {
				rows.Close()
				return fmt.Errorf("inventory.ReleaseOrder scan: %w", err)
			}
			recs = append(recs, x)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("inventory.ReleaseOrder rows: %w", err)
		}

		for _, x := range recs {
			if _, err := adjustTx(ctx, tx, Adjustment{
				VariantID: x.variantID,
				Amount:    x.qty,
				Mode:      ModeDelta,
				Reason:    "release:" + orderID.String(),
			}); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status = 'RELEASED', released_at = now()
			WHERE order_id = $1 AND status = 'RESERVED'`, orderID); err != nil {
			return fmt.Errorf("inventory.ReleaseOrder mark: %w", err)
		}
		released = len(recs)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		l.logger().Info("reservations released",
			slog.String("action", "inventory.release"),
			slog.String("order_id", orderID.String()),
			slog.Int("lines", released))
	}
	return released, nil
}

func (l *Ledger) Reservations(ctx context.Context, orderID uuid.UUID) ([]Reservation, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT order_id, variant_id, qty, status, created_at, released_at
		FROM reservations WHERE order_id = $1 ORDER BY variant_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("inventory.Reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.OrderID, &r.VariantID, &r.Qty, &r.Status, &r.CreatedAt, &r.ReleasedAt); err != nil {
			return nil, fmt.Errorf("inventory.Reservations scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OrphanedReservations lists orders still holding RESERVED stock since before
// cutoff whose order row is cancelled or was never written.
func (l *Ledger) OrphanedReservations(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT r.order_id
		FROM reservations r
		LEFT JOIN orders o ON o.id = r.order_id
		WHERE r.status = 'RESERVED' AND r.created_at < $1
		  AND (o.id IS NULL OR o.status = 'cancelled')
		GROUP BY r.order_id
		ORDER BY min(r.created_at)
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("inventory.OrphanedReservations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("inventory.OrphanedReservations scan: %w", err)
	}
	return ids, nil
}
