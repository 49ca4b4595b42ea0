package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/seahsky/joho-erp-sub004/pkg/redis"
)

var (
	// ErrAlreadyProcessed means the event finished under this consumer before.
	ErrAlreadyProcessed = errors.New("event already processed")
	// ErrInProgress means another delivery holds the lease right now.
	ErrInProgress = errors.New("event is being processed")
)

const (
	defaultLease = 2 * time.Minute

	leaseValue = "processing"
	donePrefix = "done:"
)

// Store is the subset of the redis client the manager needs.
type Store interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Manager makes event handling at-most-once per consumer. A delivery first
// takes a short lease on joho:idempotency:evt:processed:<consumer>:<event_id>;
// success replaces the lease with a done mark kept for the full ttl, failure
// deletes it so the redelivery starts over.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
	now   func() time.Time
}

type Option func(*Manager)

// WithLease overrides how long an unfinished delivery blocks others.
func WithLease(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lease = d
		}
	}
}

func NewManager(store Store, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: store, ttl: ttl, lease: defaultLease, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if ttl > 0 && m.lease > ttl {
		m.lease = ttl
	}
	return m, nil
}

// Guard runs fn unless the event is done or leased by someone else.
func (m *Manager) Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	claimed, err := m.store.SetNX(ctx, key, leaseValue, m.lease)
	if err != nil {
		return fmt.Errorf("idempotency claim: %w", err)
	}
	if !claimed {
		return m.heldBy(ctx, key)
	}

	if err := fn(ctx); err != nil {
		if delErr := m.store.Del(ctx, key); delErr != nil {
			return errors.Join(err, fmt.Errorf("release idempotency lease: %w", delErr))
		}
		return err
	}
	if err := m.store.Set(ctx, key, donePrefix+m.now().UTC().Format(time.RFC3339), m.ttl); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// Processed reports whether the event carries a done mark.
func (m *Manager) Processed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	value, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(value, donePrefix), nil
}

// Delete clears the mark so a redelivery is processed again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) heldBy(ctx context.Context, key string) error {
	value, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// lease expired between the two calls; let the redelivery claim it
		return ErrInProgress
	case err != nil:
		return fmt.Errorf("idempotency lookup: %w", err)
	case strings.HasPrefix(value, donePrefix):
		return ErrAlreadyProcessed
	default:
		return ErrInProgress
	}
}

func (m *Manager) processedKey(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
