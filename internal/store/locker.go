package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
)

// Locker serializes work on one key. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MutexLocker is an in-process lock per key.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMutexLocker creates a MutexLocker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]chan struct{})}
}

// Lock waits for key or for ctx to end.
func (l *MutexLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a lease in Redis (SET NX PX) so several pollers can share
// one database. When Redis cannot be reached it degrades to the local
// mutex and logs a warning.
type RedisLocker struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	poll     time.Duration
	fallback *MutexLocker
	logger   zerolog.Logger
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "gold-scalper"
	}
	return &RedisLocker{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		poll:     50 * time.Millisecond,
		fallback: NewMutexLocker(),
		logger:   logger.With().Str("component", "redis_locker").Logger(),
	}
}

// Lock acquires the lease, polling until ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.prefix + ":lock:" + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn().Err(err).Str("key", full).Msg("redis unavailable, using local lock")
			return l.fallback.Lock(ctx, key)
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(rctx, l.client, []string{full}, token).Err(); err != nil && err != redis.Nil {
					l.logger.Warn().Err(err).Str("key", full).Msg("failed to release lease")
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", apperrors.ErrLockNotAcquired, key)
		case <-ticker.C:
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
