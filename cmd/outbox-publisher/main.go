package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/migrate"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
	"github.com/modacart/modacart-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

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

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		fatal("failed to bootstrap pubsub", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(boot, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		fatal("failed to build event registry", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		fatal("failed to create outbox publisher", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
