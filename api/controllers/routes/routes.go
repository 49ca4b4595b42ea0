package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/api/validators"
	"github.com/seahsky/joho-erp-sub004/internal/routing"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

// Engine is the route planning surface the HTTP layer drives.
type Engine interface {
	RecomputeRoutes(ctx context.Context, date time.Time, force bool) (*routing.RecomputeResult, error)
	PackingView(ctx context.Context, date time.Time) (*routing.View, error)
	DeliveryView(ctx context.Context, date time.Time) (*routing.View, error)
}

// Recompute re-optimizes every area of the route day. ?force=true renumbers
// even when no route is stale.
func Recompute(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := validators.ParseDate(chi.URLParam(r, "date"), "date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		force, err := validators.ParseQueryBool(r, "force")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"delivery_date": date.Format(validators.DateLayout), "force": force})
		}
		result, err := engine.RecomputeRoutes(ctx, date, force)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Packing lists the day's orders last-delivered first.
func Packing(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(engine.PackingView, logg)
}

// Delivery lists the day's orders in driving order.
func Delivery(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(engine.DeliveryView, logg)
}

func viewHandler(load func(context.Context, time.Time) (*routing.View, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := validators.ParseDate(chi.URLParam(r, "date"), "date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := load(r.Context(), date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if view.Status == routing.ViewLoading {
			w.Header().Set("Retry-After", "2")
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, view)
	}
}
