package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seahsky/joho-erp-sub004/internal/bootstrap"
	"github.com/seahsky/joho-erp-sub004/internal/cron"
	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/db"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/metrics"
	"github.com/seahsky/joho-erp-sub004/pkg/redis"
)

func main() {
	cfg, logg := bootstrap.Runtime("cron-worker")
	ctx := context.Background()

	dbClient, err := bootstrap.Database(ctx, cfg, logg)
	bootstrap.Require(ctx, logg, "database", err)
	defer bootstrap.Close(ctx, logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Require(ctx, logg, "redis", err)
	defer bootstrap.Close(ctx, logg, "redis", redisClient.Close)

	core, err := bootstrap.NewCore(cfg, logg, dbClient, redisClient, metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer))
	bootstrap.Require(ctx, logg, "fulfillment engine", err)

	registry, err := buildRegistry(cfg, logg, dbClient, core)
	bootstrap.Require(ctx, logg, "cron registry", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	bootstrap.Require(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		// the lease is renewed between jobs, so one job must fit inside it
		JobTimeout: cfg.Cron.LockTTL,
	})
	bootstrap.Require(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
		"interval":    cfg.Cron.Interval.String(),
	})
	bootstrap.ServeMetrics(runCtx, logg, cfg.Service.MetricsPort)
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, core *bootstrap.Core) (*cron.Registry, error) {
	reaper, err := cron.NewPackingReaperJob(cron.PackingReaperJobParams{
		Logger: logg,
		Orders: core.Orders,
	})
	if err != nil {
		return nil, err
	}
	restock, err := cron.NewCancelledRestockJob(cron.CancelledRestockJobParams{
		Logger: logg,
		Orders: core.Orders,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := cron.NewRouteRefreshJob(cron.RouteRefreshJobParams{
		Logger:   logg,
		Routes:   core.Routes,
		Engine:   core.Engine,
		Lookback: cfg.Cron.RouteRefreshLookback,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   core.OutboxRepo,
		DeadLetters:  core.DeadLetters,
		Retention:    cfg.Cron.OutboxRetention,
		DLQRetention: cfg.Cron.DLQRetention,
		MinAttempts:  cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{reaper, restock, refresh, retention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
