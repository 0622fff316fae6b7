package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	platformredis "padron/internal/platform/redis"
	"padron/internal/records"
)

// Cache is a best-effort read-through cache for client lookups by id. Misses
// and redis failures both fall through to the store; mutations invalidate the
// key after commit, so a stale entry lives at most one round trip.
type Cache struct {
	client *platformredis.Client
	ttl    time.Duration
}

// NewCache wraps a redis client. Returns nil when redis is not configured so
// callers can keep a plain nil check.
func NewCache(client *platformredis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id int64) string {
	return "padron:client:" + strconv.FormatInt(id, 10)
}

func (c *Cache) Get(ctx context.Context, id int64) (records.Client, bool) {
	payload, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return records.Client{}, false
	}
	var client records.Client
	if err := json.Unmarshal(payload, &client); err != nil {
		return records.Client{}, false
	}
	return client, true
}

func (c *Cache) Set(ctx context.Context, client records.Client) {
	payload, err := json.Marshal(client)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(client.ID), payload, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, id int64) {
	_ = c.client.Del(ctx, cacheKey(id)).Err()
}
