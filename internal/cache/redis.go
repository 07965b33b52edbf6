package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/babel-engine/pkg/models"
)

// keyPrefix namespaces search entries so Flush never touches foreign keys
// in a shared Redis.
const keyPrefix = "babel:search:"

// Redis is the Redis-backed Store for multi-instance deployments. Expiry
// is delegated to Redis key TTLs, so Get can never observe a stale entry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedis connects and verifies the server before returning, in line with
// the rest of the engine's verify-on-construct clients.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is unrecoverable; drop it and report a miss.
		r.client.Del(ctx, keyPrefix+fingerprint)
		r.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	r.hits.Add(1)
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, entry models.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+entry.Fingerprint, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Flush removes every engine-owned key, scanning rather than FLUSHDB so a
// shared database survives.
func (r *Redis) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis flush: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis flush: %w", err)
		}
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	entries := 0
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("redis scan: %w", err)
	}
	return Stats{
		Backend: "redis",
		Entries: entries,
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
