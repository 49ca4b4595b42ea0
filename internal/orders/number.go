package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	orderNumberPrefix   = "ORD"
	orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	orderNumberSuffix   = 6
	counterTTL          = 48 * time.Hour
)

// NumberGenerator issues ORD-YYYYMMDD-XXXXXX order numbers.
type NumberGenerator interface {
	Next(ctx context.Context, day time.Time) (string, error)
}

// RandomNumbers draws the suffix from an unambiguous alphabet. The unique index
// on order_number catches the rare collision.
type RandomNumbers struct{}

func (RandomNumbers) Next(ctx context.Context, day time.Time) (string, error) {
	suffix := make([]byte, orderNumberSuffix)
	limit := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("order number entropy: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return formatOrderNumber(day, string(suffix)), nil
}

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

// CounterNumbers issues a per-day sequence from Redis: ORD-20261017-000042.
type CounterNumbers struct {
	store counterStore
}

func NewCounterNumbers(store counterStore) (*CounterNumbers, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	return &CounterNumbers{store: store}, nil
}

func (c *CounterNumbers) Next(ctx context.Context, day time.Time) (string, error) {
	key := c.store.CounterKey("order_number:" + day.Format("20060102"))
	n, err := c.store.IncrWithTTL(ctx, key, counterTTL)
	if err != nil {
		return "", fmt.Errorf("order number counter: %w", err)
	}
	if n >= 1_000_000 {
		return "", fmt.Errorf("order number counter exhausted for %s", day.Format("2006-01-02"))
	}
	return formatOrderNumber(day, fmt.Sprintf("%06d", n)), nil
}

func formatOrderNumber(day time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, day.Format("20060102"), suffix)
}
