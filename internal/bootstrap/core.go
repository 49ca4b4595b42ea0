// Package bootstrap assembles the fulfillment engine for the binaries that
// drive it.
package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/seahsky/joho-erp-sub004/internal/inventory"
	"github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/internal/routing"
	"github.com/seahsky/joho-erp-sub004/internal/sinks"
	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/db"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/maps"
	"github.com/seahsky/joho-erp-sub004/pkg/metrics"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/redis"
)

// Core is the wired engine shared by cmd/api and cmd/cron-worker.
type Core struct {
	Orders      *orders.Service
	Engine      *routing.Engine
	Ledger      *inventory.Ledger
	Routes      routing.Repository
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	DeadLetters *outbox.DLQRepository
}

// NewCore wires repositories, the ledger, the state machine and the route
// engine over one database and one Redis client.
func NewCore(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.FulfillmentMetrics) (*Core, error) {
	if cfg == nil || dbClient == nil || redisClient == nil {
		return nil, fmt.Errorf("config, database and redis are required")
	}
	taxRate, err := cfg.Fulfillment.TaxRateDecimal()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Fulfillment.Location()
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)
	sinkSvc, err := sinks.NewService(dbClient, outboxSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("sinks: %w", err)
	}

	ledgerOpts := []inventory.LedgerOption{inventory.WithLogger(logg), inventory.WithMetrics(m)}
	if cfg.FeatureFlags.LowStockNotification {
		ledgerOpts = append(ledgerOpts, inventory.WithNotifier(sinkSvc))
	}
	ledger, err := inventory.NewLedger(inventory.NewRepository(dbClient.DB()), dbClient, outboxSvc, ledgerOpts...)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}

	routeRepo := routing.NewRepository(dbClient.DB())
	numbers, err := orders.NewCounterNumbers(redisClient)
	if err != nil {
		return nil, err
	}
	orderSvc, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		ledger,
		routing.NewInvalidator(routeRepo),
		orders.Config{
			TaxRate:            taxRate,
			Location:           loc,
			EnforceCreditLimit: cfg.FeatureFlags.EnforceCreditLimit,
			PackingInactivity:  cfg.Cron.PackingInactivity,
		},
		orders.WithSinks(sinkSvc),
		orders.WithNumberGenerator(numbers),
		orders.WithMetrics(m),
		orders.WithLogger(logg),
	)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	provider, err := maps.NewClient(
		cfg.GoogleMaps.APIKey,
		maps.WithBaseURL(cfg.GoogleMaps.RoutesBaseURL),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.GoogleMaps.RequestTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("routes client: %w", err)
	}
	engine, err := routing.NewEngine(routeRepo, dbClient, provider, outboxSvc, routing.Config{
		Depot:           maps.LatLng{Latitude: cfg.Fulfillment.DepotLat, Longitude: cfg.Fulfillment.DepotLng},
		ProviderTimeout: cfg.GoogleMaps.RequestTimeout,
		DispatchHour:    cfg.Fulfillment.DispatchHour,
		Location:        loc,
		RecomputeOnRead: cfg.FeatureFlags.RecomputeOnViewRead,
	},
		routing.WithMarker(redisClient),
		routing.WithNotifier(sinkSvc),
		routing.WithMetrics(m),
		routing.WithLogger(logg),
	)
	if err != nil {
		return nil, fmt.Errorf("route engine: %w", err)
	}

	return &Core{
		Orders:      orderSvc,
		Engine:      engine,
		Ledger:      ledger,
		Routes:      routeRepo,
		Outbox:      outboxSvc,
		OutboxRepo:  outboxRepo,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
	}, nil
}
