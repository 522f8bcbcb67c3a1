package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/modacart/modacart-backend/api/routes"
	"github.com/modacart/modacart-backend/internal/cart"
	checkoutsvc "github.com/modacart/modacart-backend/internal/checkout"
	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/migrate"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/redis"
	"github.com/modacart/modacart-backend/pkg/security"
	"github.com/modacart/modacart-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap square client", err)
		os.Exit(1)
	}

	sealer, err := security.NewAddressCipher(cfg.Security.AddressKey)
	if err != nil {
		logg.Error(ctx, "failed to build address cipher", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	inboxGuard := inbox.NewGuard(dbClient.DB())

	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	returnsRepo := returns.NewRepository(dbClient.DB())

	checkoutService, err := checkoutsvc.NewService(dbClient, cartRepo, ordersRepo, nil, outboxService, sealer, nil, nil)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, nil, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	paymentGateway, err := payments.NewSquareGateway(squareClient)
	if err != nil {
		logg.Error(ctx, "failed to create payment gateway", err)
		os.Exit(1)
	}
	paymentsService, err := payments.NewService(paymentsRepo, ordersRepo, dbClient, paymentGateway, outboxService, inboxGuard, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	refundGateway, err := returns.NewSquareRefundGateway(squareClient)
	if err != nil {
		logg.Error(ctx, "failed to create refund gateway", err)
		os.Exit(1)
	}
	returnsService, err := returns.NewService(returnsRepo, ordersRepo, paymentsRepo, dbClient, refundGateway, outboxService, logg)
	if err != nil {
		logg.Error(ctx, "failed to create returns service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			redisClient,
			squareClient,
			checkoutService,
			ordersRepo,
			ordersService,
			paymentsService,
			returnsRepo,
			returnsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
