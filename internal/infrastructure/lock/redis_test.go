package lock

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/apperror"
	"docengine/internal/domain/documents"
)

type fakeUnlock struct{ released bool }

func (f *fakeUnlock) Release(context.Context) error {
	f.released = true
	return nil
}

func TestRedisLocker_Obtained(t *testing.T) {
	held := &fakeUnlock{}
	var gotKey string
	var gotTTL time.Duration
	l := newLocker(func(_ context.Context, key string, ttl time.Duration, opt *redislock.Options) (documents.Unlocker, error) {
		gotKey, gotTTL = key, ttl
		assert.NotNil(t, opt.RetryStrategy)
		return held, nil
	}, Config{TTL: 5 * time.Second})

	u, err := l.Lock(context.Background(), "docengine:create:2025_bu01:delivery_note")
	require.NoError(t, err)
	require.NoError(t, u.Release(context.Background()))

	assert.True(t, held.released)
	assert.Equal(t, "docengine:create:2025_bu01:delivery_note", gotKey)
	assert.Equal(t, 5*time.Second, gotTTL)
}

func TestRedisLocker_NotObtainedIsConflict(t *testing.T) {
	l := newLocker(func(context.Context, string, time.Duration, *redislock.Options) (documents.Unlocker, error) {
		return nil, redislock.ErrNotObtained
	}, DefaultConfig())

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))
	assert.Equal(t, http.StatusConflict, apperror.GetHTTPStatus(err))
}

func TestRedisLocker_RedisErrorIsInternal(t *testing.T) {
	l := newLocker(func(context.Context, string, time.Duration, *redislock.Options) (documents.Unlocker, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, DefaultConfig())

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}

func TestNewRedisLocker_Defaults(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	l := NewRedisLocker(rdb, Config{Retries: -1})
	assert.Equal(t, DefaultConfig().TTL, l.cfg.TTL)
	assert.Equal(t, DefaultConfig().Wait, l.cfg.Wait)
	assert.Equal(t, 0, l.cfg.Retries)
}
