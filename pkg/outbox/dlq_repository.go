package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListed = 50
)

// DLQRepository stores events the publisher gave up on and puts them back
// into the outbox on request.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// DLQFilter narrows List. A zero Reason lists every reason.
type DLQFilter struct {
	Reason enums.OutboxDLQErrorReason
	Limit  int
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	switch {
	case tx == nil:
		return errors.New("transaction required")
	case !entry.ErrorReason.IsValid():
		return fmt.Errorf("invalid dlq error reason %q", entry.ErrorReason)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		trimmed := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &trimmed
	}
	return tx.Create(&entry).Error
}

// Get returns the entry for eventID or a NOT_FOUND error.
func (r *DLQRepository) Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return r.get(r.db.WithContext(ctx), eventID)
}

// List returns the newest entries first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	if filter.Reason != "" && !filter.Reason.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown dead-letter reason %q", filter.Reason)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQListed
	}
	q := r.db.WithContext(ctx).Order("failed_at DESC").Order("id DESC").Limit(limit)
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Replay moves a dead-lettered event back into outbox_events with a fresh
// attempt budget and removes the DLQ entry, in one transaction. The outbox row
// is recreated from the DLQ copy when retention already deleted it.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error) {
	var replayed models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := r.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), eventID)
		if err != nil {
			return err
		}
		replayed = models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		upsert := clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
				"published_at":  nil,
			}),
		}
		if err := tx.Clauses(upsert).Create(&replayed).Error; err != nil {
			return fmt.Errorf("requeue outbox event: %w", err)
		}
		return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &replayed, nil
}

// PurgeBefore deletes entries that failed before cutoff.
func (r *DLQRepository) PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func (r *DLQRepository) get(q *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := q.Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "event %s is not dead-lettered", eventID)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func truncateDLQError(message string) string {
	if len(message) > maxDLQErrorLen {
		return message[:maxDLQErrorLen]
	}
	return message
}
