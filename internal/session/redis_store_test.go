package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err, "failed to create redis store")
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "://nope")
	assert.Error(t, err)
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshSession(ctx, "hash-1", 123, "avery", time.Now().Add(24*time.Hour)))

	data, err := store.LookupRefreshSession(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, int64(123), data.UserID)
	assert.Equal(t, "avery", data.Username)
	assert.True(t, s.Exists("brucewnd:refresh:hash-1"), "expected namespaced key in redis")
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, _ := setupTestRedis(t)
	err := store.SaveRefreshSession(context.Background(), "h", 1, "a", time.Now().Add(-time.Minute))
	assert.Error(t, err)
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshSession(ctx, "expired", 456, "avery", time.Now().Add(time.Minute)))
	s.FastForward(2 * time.Minute)

	_, err := store.LookupRefreshSession(ctx, "expired")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConsumeRefreshSessionIsSingleUse(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshSession(ctx, "once", 7, "avery", time.Now().Add(time.Hour)))
	data, err := store.ConsumeRefreshSession(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, int64(7), data.UserID)

	_, err = store.ConsumeRefreshSession(ctx, "once")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshSession(ctx, "revoke-me", 789, "avery", time.Now().Add(time.Hour)))
	require.NoError(t, store.RevokeRefreshSession(ctx, "revoke-me"))

	_, err := store.LookupRefreshSession(ctx, "revoke-me")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, store.RevokeRefreshSession(ctx, "never-existed"))
}

func TestSessionIsolation(t *testing.T) {
	s := miniredis.RunT(t)
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, store.SaveRefreshSession(ctx, "token-1", 1, "one", expiresAt))
	require.NoError(t, store.SaveRefreshSession(ctx, "token-2", 2, "two", expiresAt))
	require.NoError(t, store.RevokeRefreshSession(ctx, "token-1"))

	_, err := store.LookupRefreshSession(ctx, "token-1")
	assert.Error(t, err)
	data, err := store.LookupRefreshSession(ctx, "token-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), data.UserID)
}
