package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/modacart/modacart-backend/internal/cron"
	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/migrate"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "mc:cron-worker:lock:%s"
)

func main() {
	boot := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})
	fatal := func(msg string, err error) {
		logg.Error(boot, msg, err)
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", err)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		fatal("failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(boot, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		fatal("failed to run dev migrations", err)
	}

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		fatal("failed to bootstrap redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(boot, "error closing redis", err)
		}
	}()

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		fatal("failed to create cron lock", err)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxService, nil, logg)
	if err != nil {
		fatal("failed to create orders service", err)
	}

	orderTTLJob, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:  logg,
		Expirer: ordersService,
		TTL:     cfg.Checkout.PendingPaymentTTL,
	})
	if err != nil {
		fatal("failed to create order ttl job", err)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		fatal("failed to create outbox retention job", err)
	}

	inboxRetentionJob, err := cron.NewInboxRetentionJob(cron.InboxRetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Guard:     inbox.NewGuard(dbClient.DB()),
		Retention: cfg.Inbox.Retention,
	})
	if err != nil {
		fatal("failed to create inbox retention job", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(orderTTLJob, outboxRetentionJob, inboxRetentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		fatal("failed to create cron service", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
