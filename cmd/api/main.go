package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/cart"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/checkout"
	"github.com/ariefcatur/go-stock-ledger/internal/config"
	"github.com/ariefcatur/go-stock-ledger/internal/httpx"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-stock-ledger/internal/kafka"
	"github.com/ariefcatur/go-stock-ledger/internal/logging"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/outbox"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
	"github.com/ariefcatur/go-stock-ledger/internal/redisx"
	"github.com/ariefcatur/go-stock-ledger/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return err
	}

	// DB
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db := &postgres.DB{Pool: pool}

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()

	// Services
	outboxRepo := outbox.Repo{DB: db}
	ledger := inventory.NewLedger(db, inventory.Repo{}, log)
	cat := catalog.NewService(db, catalog.Repo{}, inventory.Repo{}, log)
	cats := catalog.NewCategories(db, catalog.CategoryRepo{}, log)
	carts := cart.NewService(db, cart.Repo{}, catalog.Repo{})
	ord := orders.NewService(db, orders.Repo{}, ledger, outboxRepo, log,
		orders.WithStatusCache(redisx.NewStatusCache(rdb)))
	co := checkout.NewService(db, cart.Repo{}, ledger, ord, log,
		checkout.WithIdempotency(redisx.NewCheckoutKeys(rdb)))

	// Outbox relay
	writer := kafkax.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	host, _ := os.Hostname()
	relay := outbox.NewRelay(log, outboxRepo, outbox.NewDispatcher(log, writer, cfg.OutboxTopic), host)
	relayDone := make(chan error, 1)
	go func() { relayDone <- relay.Run(ctx) }()

	// HTTP
	router := httpx.NewRouter(log, cfg.RequestTimeout)
	httpx.Mount(router, httpx.NewAuthenticator(cfg.JWTSecret), httpx.Handlers{
		Products:   &httpx.ProductsHandler{Catalog: cat, Log: log},
		Categories: &httpx.CategoriesHandler{Categories: cats, Log: log},
		Inventory:  &httpx.InventoryHandler{Ledger: ledger, Log: log},
		Cart:       &httpx.CartHandler{Carts: carts, Checkout: co, Log: log},
		Orders:     &httpx.OrdersHandler{Orders: ord, Checkout: co, Log: log},
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
		stop()
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := <-relayDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("outbox relay stopped", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
	return nil
}
