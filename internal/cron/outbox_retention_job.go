package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultParkedAttempts  = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. DeadLetters and
// DLQRetention are optional; without both the DLQ is left alone.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxPurger
	DeadLetters  dlqPurger
	Retention    time.Duration
	DLQRetention time.Duration
	// MinAttempts is the attempt count at which an unpublished row counts as parked.
	MinAttempts int
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPurger
	dlq          dlqPurger
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Repository,
		dlq:          params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		minAttempts:  params.MinAttempts,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultParkedAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published and parked outbox rows past retention, then DLQ
// entries past their own window, in one transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{
		"outbox_cutoff": now.Add(-j.retention),
		"min_attempts":  j.minAttempts,
	}
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, now.Add(-j.retention), j.minAttempts)
		if err != nil {
			return fmt.Errorf("outbox rows: %w", err)
		}
		fields["outbox_deleted"] = rows

		if j.dlq == nil || j.dlqRetention <= 0 {
			return nil
		}
		cutoff := now.Add(-j.dlqRetention)
		rows, err = j.dlq.PurgeBefore(ctx, tx, cutoff)
		if err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		fields["dlq_cutoff"] = cutoff
		fields["dlq_deleted"] = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
