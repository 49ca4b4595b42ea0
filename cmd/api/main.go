package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seahsky/joho-erp-sub004/api"
	"github.com/seahsky/joho-erp-sub004/api/routes"
	"github.com/seahsky/joho-erp-sub004/internal/bootstrap"
	"github.com/seahsky/joho-erp-sub004/pkg/metrics"
	"github.com/seahsky/joho-erp-sub004/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, logg := bootstrap.Runtime("api")
	ctx := context.Background()

	dbClient, err := bootstrap.Database(ctx, cfg, logg)
	bootstrap.Require(ctx, logg, "database", err)
	defer bootstrap.Close(ctx, logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Require(ctx, logg, "redis", err)
	defer bootstrap.Close(ctx, logg, "redis", redisClient.Close)

	core, err := bootstrap.NewCore(cfg, logg, dbClient, redisClient, metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer))
	bootstrap.Require(ctx, logg, "fulfillment engine", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})

	server := api.NewServer(addr, routes.NewRouter(cfg, logg, dbClient, redisClient, core.Orders, core.Engine, core.Ledger, core.DeadLetters))

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
