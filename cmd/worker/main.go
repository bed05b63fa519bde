package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/config"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-stock-ledger/internal/kafka"
	"github.com/ariefcatur/go-stock-ledger/internal/logging"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/outbox"
	"github.com/ariefcatur/go-stock-ledger/internal/payments"
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
	service := cfg.ServiceName + "-worker"
	log, err := logging.New(cfg.LogLevel, service)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	db := &postgres.DB{Pool: pool}

	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()

	ledger := inventory.NewLedger(db, inventory.Repo{}, log)
	ord := orders.NewService(db, orders.Repo{}, ledger, outbox.Repo{DB: db}, log,
		orders.WithStatusCache(redisx.NewStatusCache(rdb)))
	svc := &payments.Service{
		Orders: ord,
		Dedup:  redisx.NewDedup(rdb, cfg.WorkerGroup),
		Log:    log,
	}

	subs := []struct {
		topic   string
		handler kafkax.Handler
	}{
		{orders.TopicPaymentAuthorized, svc.HandlePaymentAuthorized},
		{orders.TopicPaymentFailed, svc.HandlePaymentFailed},
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, s.topic, cfg.WorkerConcurrency, log)
		wg.Add(1)
		go func(topic string, h kafkax.Handler) {
			defer wg.Done()
			log.Info("consumer started",
				zap.String("group", cfg.WorkerGroup),
				zap.String("topic", topic),
				zap.Int("workers", cfg.WorkerConcurrency))
			if err := cons.Start(ctx, h); err != nil {
				log.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				stop()
			}
		}(s.topic, s.handler)
	}

	<-ctx.Done()
	log.Info("shutting down consumers")
	wg.Wait()
	return nil
}
