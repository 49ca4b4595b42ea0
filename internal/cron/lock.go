package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 4 * time.Minute

// Lock gives one replica at a time the right to run a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// renewableLock is a Lock whose lease can be pushed out while a long cycle
// is still working through its jobs.
type renewableLock interface {
	Lock
	Extend(ctx context.Context) (bool, error)
}

type lockStore interface {
	MarkInFlight(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ExtendInFlight(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseInFlight(ctx context.Context, key, owner string) error
}

// RedisLock is a leased Redis key holding a per-acquire owner token.
type RedisLock struct {
	store lockStore
	key   string
	lease time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, lease time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if lease <= 0 {
		lease = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, lease: lease}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	claimed, err := l.store.MarkInFlight(ctx, l.key, token, l.lease)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if claimed {
		l.token = token
	}
	return claimed, nil
}

// Extend renews the lease. False means the lease expired and another replica
// may now hold the key.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	if l.token == "" {
		return false, nil
	}
	held, err := l.store.ExtendInFlight(ctx, l.key, l.token, l.lease)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !held {
		l.token = ""
	}
	return held, nil
}

// Release is a no-op unless this instance still holds the lease.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if err := l.store.ReleaseInFlight(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
