package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStorage instance
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStorage, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStorage(client, ttl), mr
}

func TestRedisStorage_SetGet(t *testing.T) {
	st, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "guest-cart:abc", []byte(`{"items":[]}`)))

	stored, err := mr.Get("aura:guest-cart:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, stored)

	got, err := st.Get(ctx, "guest-cart:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"items":[]}`), got)
}

func TestRedisStorage_Miss(t *testing.T) {
	st, _ := setupTestRedis(t, time.Hour)

	_, err := st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_TTL(t *testing.T) {
	st, mr := setupTestRedis(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v")))
	assert.Equal(t, 10*time.Minute, mr.TTL("aura:k"))

	mr.FastForward(11 * time.Minute)
	_, err := st.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_Delete(t *testing.T) {
	st, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v")))
	require.NoError(t, st.Delete(ctx, "k"))
	assert.False(t, mr.Exists("aura:k"))

	// deleting again is not an error
	assert.NoError(t, st.Delete(ctx, "k"))
}

func TestRedisStorage_ConnectionError(t *testing.T) {
	st, mr := setupTestRedis(t, 0)
	mr.Close()

	err := st.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set failed")
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	st := NewMemoryStorage(0)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, st.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryStorage_Expiry(t *testing.T) {
	st := NewMemoryStorage(time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v")))

	now = now.Add(2 * time.Minute)
	_, err := st.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_Delete(t *testing.T) {
	st := NewMemoryStorage(0)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v")))
	require.NoError(t, st.Delete(ctx, "k"))

	_, err := st.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
