// Package lock serializes document creation across server instances when the
// bound engine cannot run the creation in one transaction.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"docengine/internal/core/apperror"
	"docengine/internal/domain/documents"
	"docengine/pkg/logger"
)

// Config configures RedisLocker.
type Config struct {
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
	// Wait is the interval between attempts.
	Wait time.Duration
	// Retries is the number of extra attempts before giving up.
	Retries int
}

// DefaultConfig returns defaults suited to a single document creation.
func DefaultConfig() Config {
	return Config{
		TTL:     30 * time.Second,
		Wait:    100 * time.Millisecond,
		Retries: 50,
	}
}

type obtainFunc func(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (documents.Unlocker, error)

// RedisLocker implements documents.Locker with bsm/redislock.
type RedisLocker struct {
	obtain obtainFunc
	cfg    Config
}

var _ documents.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker over a go-redis client.
func NewRedisLocker(client redislock.RedisClient, cfg Config) *RedisLocker {
	rl := redislock.New(client)
	return newLocker(func(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (documents.Unlocker, error) {
		l, err := rl.Obtain(ctx, key, ttl, opt)
		if err != nil {
			return nil, err
		}
		return l, nil
	}, cfg)
}

func newLocker(obtain obtainFunc, cfg Config) *RedisLocker {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &RedisLocker{obtain: obtain, cfg: cfg}
}

// Lock blocks until key is obtained or the retries run out.
func (l *RedisLocker) Lock(ctx context.Context, key string) (documents.Unlocker, error) {
	opt := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.Wait), l.cfg.Retries),
	}

	u, err := l.obtain(ctx, key, l.cfg.TTL, opt)
	switch {
	case err == nil:
		logger.Debug(ctx, "creation lock obtained", "key", key)
		return u, nil
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, apperror.NewConcurrentModification("document", key)
	case ctx.Err() != nil:
		return nil, apperror.NewConcurrentModification("document", key).WithCause(ctx.Err())
	default:
		return nil, apperror.NewInternal(fmt.Errorf("obtain lock %s: %w", key, err))
	}
}
