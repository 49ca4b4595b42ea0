package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL sets the expiry only on the increment that created the key, so
// a crash between INCR and PEXPIRE cannot leave a counter without a TTL.
var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// releaseIfOwner deletes the marker only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// extendIfOwner resets the expiry while the marker still holds ARGV[1].
var extendIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// IncrWithTTL increments a counter, attaching ttl when the counter is new.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	return incrWithTTL.Run(ctx, c.store, []string{key}, ttl.Milliseconds()).Int64()
}

// MarkInFlight claims key for owner and reports false when it is already held.
func (c *Client) MarkInFlight(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, owner, ttl)
}

func (c *Client) InFlight(ctx context.Context, key string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := c.store.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseInFlight drops key if owner still holds it; an expired or
// re-claimed marker is left alone.
func (c *Client) ReleaseInFlight(ctx context.Context, key, owner string) error {
	if c.store == nil {
		return errNotInitialized
	}
	return releaseIfOwner.Run(ctx, c.store, []string{key}, owner).Err()
}

// ExtendInFlight pushes the marker's expiry to ttl from now. It reports false
// when owner no longer holds key.
func (c *Client) ExtendInFlight(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := extendIfOwner.Run(ctx, c.store, []string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
