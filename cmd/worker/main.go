package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/config"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("err", err))
		os.Exit(1)
	}
	cfg.ServiceName += "-worker"
	log := cfg.Logger()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256, log)
	prod.Start()
	defer prod.WaitClosed()
	defer prod.Close()

	orderRepo := &orders.Repo{DB: db}
	ledger := &inventory.Ledger{DB: db, Logger: log}
	gateway := &payments.Paystack{SecretKey: cfg.Payments.SecretKey, BaseURL: cfg.Payments.BaseURL, HTTP: http.DefaultClient}
	machine := &orders.Machine{
		Repo:      orderRepo,
		Inventory: ledger,
		Events:    prod,
		Cache:     &redisx.StatusCache{Redis: rdb},
		Loyalty:   &accounts.Store{DB: db},
		Logger:    log,
		Producer:  cfg.ServiceName,
	}
	sweeper := &payments.Sweeper{
		Orders:     orderRepo,
		Gateway:    gateway,
		Reconciler: &payments.Reconciler{Orders: orderRepo, Machine: machine, Gateway: gateway, Logger: log},
		Machine:    machine,
		TTL:        cfg.Worker.ReservationTTL,
		Interval:   cfg.Worker.SweepInterval,
		Batch:      cfg.Worker.SweepBatch,
		Logger:     log,
	}
	reclaimer := &inventory.Reclaimer{
		Ledger:   ledger,
		Grace:    cfg.Worker.ReclaimGrace,
		Interval: cfg.Worker.ReclaimInterval,
		Batch:    cfg.Worker.SweepBatch,
		Logger:   log,
	}
	release := &inventory.ReleaseService{Ledger: ledger, Redis: rdb, Logger: log, ServiceName: cfg.ServiceName}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Worker.Group, orders.TopicReleaseRequested, cfg.Worker.Concurrency, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return reclaimer.Run(ctx) })
	g.Go(func() error {
		log.Info("release consumer started",
			slog.String("group", cfg.Worker.Group),
			slog.String("topic", orders.TopicReleaseRequested),
			slog.Int("workers", cfg.Worker.Concurrency))
		return cons.Start(ctx, release.HandleReleaseRequested)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}
