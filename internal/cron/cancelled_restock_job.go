package cron

import (
	"context"
	"fmt"

	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const defaultRestockBatch = 200

// CancelledRestockJobParams configure the sweep that returns stock for
// cancelled orders whose restore did not complete.
type CancelledRestockJobParams struct {
	Logger    *logger.Logger
	Orders    cancelledStock
	BatchSize int
}

type cancelledStock interface {
	RepairCancelledStock(ctx context.Context, limit int) (int, error)
}

func NewCancelledRestockJob(params CancelledRestockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRestockBatch
	}
	return &cancelledRestockJob{logg: params.Logger, orders: params.Orders, batch: batch}, nil
}

type cancelledRestockJob struct {
	logg   *logger.Logger
	orders cancelledStock
	batch  int
}

func (j *cancelledRestockJob) Name() string { return "cancelled-restock" }

func (j *cancelledRestockJob) Run(ctx context.Context) error {
	repaired, err := j.orders.RepairCancelledStock(ctx, j.batch)
	if repaired > 0 || err != nil {
		logCtx := j.logg.WithField(ctx, "repaired", repaired)
		j.logg.Info(logCtx, "cancelled order stock repaired")
	}
	if err != nil {
		return fmt.Errorf("repair cancelled stock: %w", err)
	}
	return nil
}
