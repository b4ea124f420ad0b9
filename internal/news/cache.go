package news

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
)

// Cache stores fetched calendars. Implementations degrade to a miss on
// failure; a cache never fails a fetch.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.NewsEvent, bool)
	Set(ctx context.Context, key string, events []models.NewsEvent, ttl time.Duration)
}

type memoryEntry struct {
	events  []models.NewsEvent
	expires time.Time
}

// MemoryCache is a process-local cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty cache. now defaults to time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: map[string]memoryEntry{}, now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.NewsEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return slices.Clone(e.events), true
}

func (c *MemoryCache) Set(_ context.Context, key string, events []models.NewsEvent, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{events: slices.Clone(events), expires: c.now().Add(ttl)}
}

// RedisCache shares the calendar between instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisCache wraps a connected client. Keys are namespaced by prefix.
func NewRedisCache(client *redis.Client, prefix string, logger zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, logger: logging.WithComponent(logger, "news.cache")}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.NewsEvent, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("news cache read failed")
		}
		return nil, false
	}
	var events []models.NewsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("news cache entry unreadable")
		return nil, false
	}
	return events, true
}

func (c *RedisCache) Set(ctx context.Context, key string, events []models.NewsEvent, ttl time.Duration) {
	data, err := json.Marshal(events)
	if err != nil {
		c.logger.Warn().Err(err).Msg("news cache encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("news cache write failed")
	}
}

// CachedSource serves a source through a cache. Failures are not cached.
type CachedSource struct {
	source Source
	cache  Cache
	ttl    time.Duration
}

// NewCachedSource wraps source.
func NewCachedSource(source Source, cache Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, cache: cache, ttl: ttl}
}

func (s *CachedSource) Name() string { return s.source.Name() }

func (s *CachedSource) Events(ctx context.Context, now time.Time) ([]models.NewsEvent, error) {
	key := "news:" + s.source.Name()
	if events, ok := s.cache.Get(ctx, key); ok {
		return events, nil
	}
	events, err := s.source.Events(ctx, now)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, events, s.ttl)
	return events, nil
}
