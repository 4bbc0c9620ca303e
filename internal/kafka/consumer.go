package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler returns nil only when the message is fully processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *slog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: logger.With(slog.String("topic", topic), slog.String("group", group))}
}

// Start blocks until ctx is cancelled or the reader fails. Failed handlers are
// retried with backoff before the offset is committed, so delivery is at-least-once.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*4)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for m := range jobs {
				c.process(gctx, h, m)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case jobs <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // until ctx ends

	err := backoff.RetryNotify(func() error {
		return h(ctx, m)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.log.Warn("handler failed, retrying",
			slog.Int("partition", m.Partition), slog.Int64("offset", m.Offset),
			slog.Duration("next", next), slog.Any("err", err))
	})
	if err != nil {
		// only reachable on shutdown; the uncommitted message is redelivered
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error("commit failed", slog.Int64("offset", m.Offset), slog.Any("err", err))
	}
}
