package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seahsky/joho-erp-sub004/api/controllers"
	inventorycontrollers "github.com/seahsky/joho-erp-sub004/api/controllers/inventory"
	ordercontrollers "github.com/seahsky/joho-erp-sub004/api/controllers/orders"
	outboxcontrollers "github.com/seahsky/joho-erp-sub004/api/controllers/outbox"
	routecontrollers "github.com/seahsky/joho-erp-sub004/api/controllers/routes"
	"github.com/seahsky/joho-erp-sub004/api/middleware"
	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/db"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

// Cache is the Redis surface used by the idempotency middleware and readiness probe.
type Cache interface {
	middleware.ResponseStore
	Ping(context.Context) error
}

var (
	staffRoles   = []enums.ActorRole{enums.ActorRoleStaff, enums.ActorRoleManager, enums.ActorRoleAdmin}
	routeViewers = []enums.ActorRole{enums.ActorRoleStaff, enums.ActorRoleManager, enums.ActorRoleAdmin, enums.ActorRoleDriver}
	approvers    = []enums.ActorRole{enums.ActorRoleManager, enums.ActorRoleAdmin}
	admins       = []enums.ActorRole{enums.ActorRoleAdmin}
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache Cache,
	ordersSvc ordercontrollers.Service,
	routeEngine routecontrollers.Engine,
	ledger inventorycontrollers.Ledger,
	deadLetters outboxcontrollers.DeadLetters,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	deps := map[string]controllers.Pinger{"database": dbP}
	if cache != nil {
		deps["redis"] = cache
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	r.Handle("/metrics", promhttp.Handler())

	var idempotencyStore middleware.ResponseStore
	if cache != nil {
		idempotencyStore = cache
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Post("/{orderId}/transition", ordercontrollers.Transition(ordersSvc, logg))
			r.With(middleware.RequireRole(logg, staffRoles...)).Post("/{orderId}/packed-items", ordercontrollers.PackItem(ordersSvc, logg))
			r.Patch("/{orderId}/delivery", ordercontrollers.UpdateDelivery(ordersSvc, logg))
		})

		r.With(middleware.RequireRole(logg, approvers...)).
			Post("/backorders/{orderId}/resolve", ordercontrollers.ResolveBackorder(ordersSvc, logg))

		r.Route("/routes/{date}", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, staffRoles...)).Post("/recompute", routecontrollers.Recompute(routeEngine, logg))
			r.With(middleware.RequireRole(logg, routeViewers...)).Get("/packing", routecontrollers.Packing(routeEngine, logg))
			r.With(middleware.RequireRole(logg, routeViewers...)).Get("/delivery", routecontrollers.Delivery(routeEngine, logg))
		})

		r.Route("/inventory/{productId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, staffRoles...))
			r.Get("/", inventorycontrollers.Product(ledger, logg))
			r.Get("/transactions", inventorycontrollers.History(ledger, logg))
			r.Get("/reconcile", inventorycontrollers.Reconcile(ledger, logg))
			r.With(middleware.RequireRole(logg, approvers...)).Post("/adjustments", inventorycontrollers.Adjust(ledger, logg))
		})

		r.Route("/admin/outbox/dead-letters", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, admins...))
			r.Get("/", outboxcontrollers.List(deadLetters, logg))
			r.Get("/{eventId}", outboxcontrollers.Detail(deadLetters, logg))
			r.Post("/{eventId}/replay", outboxcontrollers.Replay(deadLetters, logg))
		})
	})

	return r
}
