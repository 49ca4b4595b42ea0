package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/router"
	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
	"github.com/seahsky/joho-erp-sub004/internal/analytics/worker"
	"github.com/seahsky/joho-erp-sub004/internal/analytics/writer"
	"github.com/seahsky/joho-erp-sub004/internal/bootstrap"
	"github.com/seahsky/joho-erp-sub004/pkg/bigquery"
	"github.com/seahsky/joho-erp-sub004/pkg/metrics"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/idempotency"
	"github.com/seahsky/joho-erp-sub004/pkg/pubsub"
	"github.com/seahsky/joho-erp-sub004/pkg/redis"
)

func main() {
	cfg, logg := bootstrap.Runtime("analytics-worker")
	ctx := context.Background()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Require(ctx, logg, "redis", err)
	defer bootstrap.Close(ctx, logg, "redis client", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	bootstrap.Require(ctx, logg, "pubsub", err)
	defer bootstrap.Close(ctx, logg, "pubsub client", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{
		Name:           cfg.BigQuery.FulfillmentEventTable,
		Row:            types.FulfillmentEventRow{},
		PartitionField: "occurred_at",
	})
	bootstrap.Require(ctx, logg, "bigquery client", err)
	defer bootstrap.Close(ctx, logg, "bigquery client", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		bootstrap.Require(ctx, logg, "analytics subscription", errors.New("JOHO_PUBSUB_ANALYTICS_SUBSCRIPTION not configured"))
	}

	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL, idempotency.WithLease(cfg.Eventing.ConsumerLease))
	bootstrap.Require(ctx, logg, "idempotency manager", err)

	rowWriter, err := writer.New(bqClient, writer.Config{
		Table:    cfg.BigQuery.FulfillmentEventTable,
		Attempts: cfg.BigQuery.InsertAttempts,
	})
	bootstrap.Require(ctx, logg, "fulfillment event writer", err)

	handler, err := router.NewRouter(rowWriter, logg)
	bootstrap.Require(ctx, logg, "analytics router", err)

	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      handler,
		Guard:        guard,
		Metrics:      metrics.NewEventMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
	bootstrap.Require(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"table":       cfg.BigQuery.FulfillmentEventTable,
	})
	bootstrap.ServeMetrics(runCtx, logg, cfg.Service.MetricsPort)
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}
