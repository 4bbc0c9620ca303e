package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/config"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/httpx"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/idempotency"
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
	log := cfg.Logger()
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()

	var (
		orderRepo   = &orders.Repo{DB: db}
		ledger      = &inventory.Ledger{DB: db, Logger: log}
		carts       = &cart.Store{DB: db}
		products    = &catalog.Repo{DB: db}
		accountRepo = &accounts.Store{DB: db}
		statusCache = &redisx.StatusCache{Redis: rdb}
		gateway     = &payments.Paystack{
			SecretKey: cfg.Payments.SecretKey,
			BaseURL:   cfg.Payments.BaseURL,
			HTTP:      &http.Client{Timeout: cfg.Checkout.PaymentTimeout},
		}
	)

	machine := &orders.Machine{
		Repo:      orderRepo,
		Inventory: ledger,
		Events:    prod,
		Cache:     statusCache,
		Loyalty:   accountRepo,
		Logger:    log,
		Producer:  cfg.ServiceName,
	}
	reconciler := &payments.Reconciler{Orders: orderRepo, Machine: machine, Gateway: gateway, Logger: log}

	svc := &checkout.Service{
		Carts:     carts,
		Catalog:   products,
		Inventory: ledger,
		Orders:    orderRepo,
		Machine:   machine,
		Loyalty:   accountRepo,
		Promoter: &accounts.Promoter{
			Identity: accountRepo,
			Orders:   orderRepo,
			Min:      cfg.Promotion.Min,
			Max:      cfg.Promotion.Max,
			Prefix:   cfg.Promotion.PasswordPrefix,
			Events:   prod,
			Producer: cfg.ServiceName,
			Logger:   log,
		},
		Gateway:  gateway,
		Shipping: checkout.ZoneQuoter{Enabled: cfg.Checkout.ShippingEnabled},
		Converter: &checkout.Converter{
			Fallback:      cfg.Checkout.FallbackRates,
			MarkupPercent: cfg.Checkout.MarkupPercent,
			Logger:        log,
		},
		Idempotency: &idempotency.Cache{
			Store:  &idempotency.RedisStore{Client: rdb, KeyFormat: redisx.KeyIdemCheckout},
			Wait:   cfg.Checkout.IdempotencyWait,
			Logger: log,
		},
		Events:         prod,
		Producer:       cfg.ServiceName,
		Logger:         log,
		Currency:       cfg.Checkout.Currency,
		CallbackURL:    cfg.Payments.CallbackURL,
		PaymentTimeout: cfg.Checkout.PaymentTimeout,
		PaymentRetries: cfg.Checkout.PaymentRetries,
	}

	router := httpx.NewRouter(
		&httpx.CheckoutHandler{Service: svc, Accounts: accountRepo, Logger: log},
		&httpx.PaymentsHandler{Reconciler: reconciler, Secret: cfg.Payments.SecretKey, Cache: statusCache, Logger: log},
		&httpx.OrdersHandler{Orders: orderRepo, Machine: machine, Cache: statusCache, Logger: log},
		&httpx.InventoryHandler{Ledger: ledger, Logger: log},
		&httpx.CartHandler{Carts: carts, Products: products, Logger: log},
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", slog.Any("err", err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	prod.Close()
	prod.WaitClosed()
}
