package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-realtime-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/redisx"
)

type OrderReleaser interface {
	ReleaseOrder(ctx context.Context, orderID uuid.UUID) (int, error)
}

// ReleaseService retries inventory releases that the order state machine
// could not finish in-process. It is wired as a Kafka consumer handler.
type ReleaseService struct {
	Ledger      OrderReleaser
	Redis       *redis.Client // optional dedup
	Logger      *slog.Logger
	ServiceName string
}

func (s *ReleaseService) HandleReleaseRequested(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Logger.Error("drop malformed release request", slog.Int64("offset", m.Offset), slog.Any("err", err))
		return nil
	}
	if env.EventType != orders.EventReleaseRequested {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.ReleaseRequestedPayload](env.Payload)
	if err != nil {
		s.Logger.Error("drop release request with bad payload", slog.String("event_id", env.EventID), slog.Any("err", err))
		return nil
	}

	n, err := s.Ledger.ReleaseOrder(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("release order %s: %w", p.OrderID, err)
	}

	if s.Redis != nil {
		_, _ = redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	}
	s.Logger.Info("deferred release applied",
		slog.String("action", "inventory.release"),
		slog.String("order_id", p.OrderID.String()),
		slog.String("reason", p.Reason),
		slog.Int("lines", n))
	return nil
}
