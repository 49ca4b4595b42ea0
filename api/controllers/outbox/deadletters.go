package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/api/middleware"
	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/api/validators"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	pkgoutbox "github.com/seahsky/joho-erp-sub004/pkg/outbox"
)

// DeadLetters is the DLQ surface exposed to operators.
type DeadLetters interface {
	List(ctx context.Context, filter pkgoutbox.DLQFilter) ([]models.OutboxDLQ, error)
	Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error)
}

type deadLetterResponse struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Topic         string                     `json:"topic,omitempty"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         *string                    `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload,omitempty"`
}

type replayResponse struct {
	EventID   uuid.UUID             `json:"event_id"`
	EventType enums.OutboxEventType `json:"event_type"`
	Requeued  bool                  `json:"requeued"`
}

// List returns parked events, newest first. ?reason= filters, ?limit= caps.
func List(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := dlq.List(r.Context(), pkgoutbox.DLQFilter{
			Reason: enums.OutboxDLQErrorReason(strings.TrimSpace(r.URL.Query().Get("reason"))),
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]deadLetterResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, toResponse(row, false))
		}
		responses.WriteList(w, out, len(out), "")
	}
}

// Detail returns one parked event including its stored payload.
func Detail(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := dlq.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(*row, true))
	}
}

// Replay puts a parked event back in the outbox for the publisher.
func Replay(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := dlq.Replay(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logg.Info(logg.WithFields(r.Context(), map[string]any{
			"event_id":   event.ID.String(),
			"event_type": event.EventType,
			"actor_id":   middleware.ActorIDFromContext(r.Context()),
		}), "dead-lettered event requeued")
		responses.WriteSuccessStatus(w, http.StatusAccepted, replayResponse{
			EventID:   event.ID,
			EventType: event.EventType,
			Requeued:  true,
		})
	}
}

func toResponse(row models.OutboxDLQ, withPayload bool) deadLetterResponse {
	out := deadLetterResponse{
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Topic:         row.Topic,
		Reason:        row.ErrorReason,
		Error:         row.ErrorMessage,
		Attempts:      row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
	if withPayload {
		out.Payload = row.Payload
	}
	return out
}
