package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const defaultReaperBatch = 200

// PackingReaperJobParams configure the packing inactivity sweep.
type PackingReaperJobParams struct {
	Logger    *logger.Logger
	Orders    packingOrders
	BatchSize int
}

type packingOrders interface {
	IdlePacking(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Get(ctx context.Context, actor orders.Actor, id uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, in orders.TransitionInput) (*models.Order, error)
	PackingInactivity() time.Duration
}

// NewPackingReaperJob builds the job that returns abandoned packing sessions to confirmed.
func NewPackingReaperJob(params PackingReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReaperBatch
	}
	return &packingReaperJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type packingReaperJob struct {
	logg   *logger.Logger
	orders packingOrders
	batch  int
	now    func() time.Time
}

func (j *packingReaperJob) Name() string { return "packing-reaper" }

func (j *packingReaperJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.orders.PackingInactivity())
	idle, err := j.orders.IdlePacking(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query idle packing orders: %w", err)
	}
	var errs []error
	released := 0
	for _, order := range idle {
		ok, err := j.release(ctx, order)
		if err != nil {
			errs = append(errs, fmt.Errorf("release order %s: %w", order.ID, err))
			continue
		}
		if ok {
			released++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"idle":     len(idle),
		"released": released,
		"failed":   len(errs),
	})
	j.logg.Info(logCtx, "packing reaper loop complete")
	return multierr.Combine(errs...)
}

// release moves one idle order back to confirmed. A concurrent edit is re-read
// once; if the order is no longer idle it is left alone.
func (j *packingReaperJob) release(ctx context.Context, order models.Order) (bool, error) {
	version := order.Version
	for attempt := 0; attempt < 2; attempt++ {
		_, err := j.orders.Transition(ctx, orders.TransitionInput{
			OrderID: order.ID,
			Target:  enums.OrderStatusConfirmed,
			Actor:   orders.SystemActor,
			Version: version,
		})
		switch {
		case err == nil:
			return true, nil
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
			return false, nil
		case !pkgerrors.IsCode(err, pkgerrors.CodeVersionConflict):
			return false, err
		}
		current, err := j.orders.Get(ctx, orders.SystemActor, order.ID)
		if err != nil {
			return false, err
		}
		if current.Status != enums.OrderStatusPacking {
			return false, nil
		}
		version = current.Version
	}
	return false, nil
}
