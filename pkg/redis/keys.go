package redis

import "strings"

// All keys live under joho:<kind>:... so a shared instance can be scanned or
// flushed per concern.
const (
	keyNamespace      = "joho"
	idempotencyPrefix = "idempotency"
	counterPrefix     = "counter"
	lockPrefix        = "lock"
	routePrefix       = "route"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

func (c *Client) CounterKey(name string) string {
	return buildKey(counterPrefix, name)
}

func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

// RouteRecomputeKey is the in-flight marker for one delivery date (YYYY-MM-DD).
func (c *Client) RouteRecomputeKey(date string) string {
	return buildKey(routePrefix, "recompute", date)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
