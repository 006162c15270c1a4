package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), &config.RedisConfig{Addr: addr, DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}

func TestLikeCache_SetAndGet(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewLikeCache(client, testLogger())
	ctx := context.Background()

	require.NoError(t, cache.SetLikeCount(ctx, "w1", 3))
	count, err := cache.GetLikeCount(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = cache.GetLikeCount(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorldNotFound)
}

func TestLikeCache_TopLiked(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewLikeCache(client, testLogger())
	ctx := context.Background()

	require.NoError(t, cache.BatchSetLikeCounts(ctx, map[string]int64{"w1": 1, "w2": 5, "w3": 3}))

	top, err := cache.TopLiked(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.LikeCount{{WorldID: "w2", Count: 5}, {WorldID: "w3", Count: 3}}, top)

	none, err := cache.TopLiked(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLikeCache_Forget(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewLikeCache(client, testLogger())
	ctx := context.Background()

	require.NoError(t, cache.BatchSetLikeCounts(ctx, map[string]int64{"w1": 1, "w2": 2}))
	require.NoError(t, cache.Forget(ctx, "w1"))

	ids, err := cache.CachedWorldIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, ids)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewSessionStore(client, testLogger())
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	session := &domain.Session{
		ID:          "01HSESSION",
		AccessToken: "token",
		ExpiresAt:   expires,
		User:        &domain.User{ID: "u1", Email: "a@example.com", DisplayName: "Alice"},
	}
	require.NoError(t, store.SaveSession(ctx, session))
	assert.True(t, mr.Exists("session:01HSESSION"))

	got, err := store.GetSession(ctx, "01HSESSION")
	require.NoError(t, err)
	assert.Equal(t, "token", got.AccessToken)
	assert.Equal(t, "u1", got.User.ID)
	assert.Equal(t, "Alice", got.User.DisplayName)
	assert.True(t, expires.Equal(got.ExpiresAt))

	require.NoError(t, store.DeleteSession(ctx, "01HSESSION"))
	_, err = store.GetSession(ctx, "01HSESSION")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, "01HSESSION"), domain.ErrSessionNotFound)
}

func TestSessionStore_Expires(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewSessionStore(client, testLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &domain.Session{
		ID:        "s1",
		ExpiresAt: time.Now().Add(time.Minute),
		User:      &domain.User{ID: "u1"},
	}))

	mr.FastForward(2 * time.Minute)

	_, err := store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_RequiresUser(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewSessionStore(client, testLogger())

	err := store.SaveSession(context.Background(), &domain.Session{ID: "s1", ExpiresAt: time.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
