package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerAcquireAndRelease(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, LockerConfig{TTL: time.Second, Wait: 20 * time.Millisecond, Retry: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "production:order:1:lock")
	require.NoError(t, err)
	require.True(t, mr.Exists("production:order:1:lock"))

	_, err = locker.Lock(ctx, "production:order:1:lock")
	require.ErrorIs(t, err, ErrLockHeld)

	unlock()
	require.False(t, mr.Exists("production:order:1:lock"))

	unlock, err = locker.Lock(ctx, "production:order:1:lock")
	require.NoError(t, err)
	unlock()
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, LockerConfig{TTL: time.Second})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, mr.Set("k", "someone-else"))
	unlock()

	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestLockerFailOpen(t *testing.T) {
	mr, client := newTestClient(t)
	mr.Close()

	strict := NewLocker(client, LockerConfig{})
	_, err := strict.Lock(context.Background(), "k")
	require.Error(t, err)

	lenient := NewLocker(client, LockerConfig{FailOpen: true})
	unlock, err := lenient.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestJSONCacheFetchAndBump(t *testing.T) {
	_, client := newTestClient(t)
	c := NewJSONCache(client, "catalog", time.Minute)
	ctx := context.Background()

	type item struct {
		Name string `json:"name"`
	}
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return item{Name: "kính 24mm"}, nil
	}

	key, err := c.BuildKey(ctx, "product", "1")
	require.NoError(t, err)
	require.Equal(t, "catalog:product:1:v1", key)

	var got item
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, "kính 24mm", got.Name)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "product", "1")
	require.NoError(t, err)
	require.Equal(t, "catalog:product:1:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, calls)
}

func TestJSONCacheWithoutClientCallsLoader(t *testing.T) {
	c := NewJSONCache(nil, "catalog", time.Minute)
	boom := errors.New("boom")
	var dest map[string]any
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestNewFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := New(context.Background(), addr, "glassflow-test")
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), addr)
}
