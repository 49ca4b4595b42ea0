package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seahsky/joho-erp-sub004/internal/bootstrap"
	"github.com/seahsky/joho-erp-sub004/pkg/metrics"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/registry"
	"github.com/seahsky/joho-erp-sub004/pkg/pubsub"
)

func main() {
	cfg, logg := bootstrap.Runtime("outbox-publisher")
	ctx := context.Background()

	dbClient, err := bootstrap.Database(ctx, cfg, logg)
	bootstrap.Require(ctx, logg, "database", err)
	defer bootstrap.Close(ctx, logg, "database", dbClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, pubsub.WithTopicCheck())
	bootstrap.Require(ctx, logg, "pubsub", err)
	defer bootstrap.Close(ctx, logg, "pubsub client", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	bootstrap.Require(ctx, logg, "event registry", err)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewEventMetrics(prometheus.DefaultRegisterer),
	})
	bootstrap.Require(ctx, logg, "outbox publisher", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"topics":      []string{cfg.PubSub.DomainTopic, cfg.PubSub.NotificationTopic, cfg.PubSub.AccountingTopic},
	})
	bootstrap.ServeMetrics(runCtx, logg, cfg.Service.MetricsPort)
	logg.Info(runCtx, "starting outbox publisher")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "outbox publisher shutting down gracefully")
}
