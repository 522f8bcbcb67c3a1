package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modacart/modacart-backend/internal/consumers"
	analyticsconsumer "github.com/modacart/modacart-backend/internal/consumers/analytics"
	notificationsconsumer "github.com/modacart/modacart-backend/internal/consumers/notifications"
	refundsconsumer "github.com/modacart/modacart-backend/internal/consumers/refunds"
	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/bigquery"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/identity"
	"github.com/modacart/modacart-backend/pkg/instance"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/mailer"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/pubsub"
	"github.com/modacart/modacart-backend/pkg/square"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	requireResource(ctx, logg, "square client", err)

	mailClient, err := mailer.NewClient(cfg.Sendgrid.APIKey, cfg.Sendgrid.DefaultFrom, logg)
	requireResource(ctx, logg, "mailer", err)

	identityClient, err := identity.NewClient(cfg.Identity.BaseURL, logg)
	requireResource(ctx, logg, "identity client", err)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	guard := inbox.NewGuard(dbClient.DB())
	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	returnsRepo := returns.NewRepository(dbClient.DB())

	refundGateway, err := returns.NewSquareRefundGateway(squareClient)
	requireResource(ctx, logg, "refund gateway", err)

	returnsService, err := returns.NewService(returnsRepo, ordersRepo, paymentsRepo, dbClient, refundGateway, outboxService, logg)
	requireResource(ctx, logg, "returns service", err)

	refundConsumer, err := refundsconsumer.NewConsumer(returnsService, mailClient, identityClient, guard, dbClient, consumerMetrics, logg)
	requireResource(ctx, logg, "refund consumer", err)

	analyticsConsumer, err := analyticsconsumer.NewConsumer(bqClient, cfg.BigQuery.OrderEventsTable, guard, dbClient, consumerMetrics, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	opsConsumer, err := notificationsconsumer.NewConsumer(mailClient, cfg.Sendgrid.OpsEmail, guard, dbClient, consumerMetrics, logg)
	requireResource(ctx, logg, "ops notification consumer", err)

	refundRunner, err := consumers.NewRunner(pubsubClient.RefundsSubscription(), refundConsumer, consumerMetrics, logg)
	requireResource(ctx, logg, "refund runner", err)

	analyticsRunner, err := consumers.NewRunner(pubsubClient.AnalyticsSubscription(), analyticsConsumer, consumerMetrics, logg)
	requireResource(ctx, logg, "analytics runner", err)

	opsRunner, err := consumers.NewRunner(pubsubClient.NotificationSubscription(), opsConsumer, consumerMetrics, logg)
	requireResource(ctx, logg, "ops runner", err)

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		PubSub:   pubsubClient,
		BigQuery: bqClient,
		Runners:  []*consumers.Runner{refundRunner, analyticsRunner, opsRunner},
	})
	requireResource(ctx, logg, "worker service", err)

	go serveMetrics(ctx, logg, cfg.App.Port)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped", err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
