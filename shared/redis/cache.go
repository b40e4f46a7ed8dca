package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ViewCache is a generic JSON-backed Redis cache for read model projections.
// Bind it to a specific view type T; each instance holds a Redis client and an
// optional TTL (pass 0 for keys that should not expire).
//
// A ViewCache built with a nil client never hits and ignores writes, which is
// how the service runs without Redis.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewViewCache creates a ViewCache whose keys are prefix+id.
func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *ViewCache[T]) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *ViewCache[T]) key(id string) string {
	return c.prefix + id
}

// Get retrieves and unmarshals a value from Redis.
// Returns (nil, false) on any miss or deserialisation error.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Warn().Err(err).Str("key", c.key(id)).Msg("view cache read failed")
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("key", c.key(id)).Msg("view cache entry is corrupt")
		return nil, false
	}
	return &v, true
}

// Set marshals value and stores it in Redis under id.
// Errors are logged, not returned.
func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", c.key(id)).Msg("view cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", c.key(id)).Msg("view cache write failed")
	}
}

// Delete removes the entries for ids in one round trip.
func (c *ViewCache[T]) Delete(ctx context.Context, ids ...string) {
	if !c.Enabled() || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("view cache delete failed")
	}
}
