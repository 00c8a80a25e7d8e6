package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/roomsync/pkg/storage"
)

func newRedisStore(t *testing.T, opts ...storage.RedisStoreOption) (*storage.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return storage.NewRedisStore(client, opts...), mr
}

func TestRedisStore_PutGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "rooms/r1", []byte(`{"clock":1}`)))
	assert.True(t, mr.Exists("roomsync:rooms/r1"), "key should carry the default prefix")

	got, err := store.Get(ctx, "rooms/r1")
	require.NoError(t, err)
	assert.Equal(t, `{"clock":1}`, string(got))

	require.NoError(t, store.Put(ctx, "rooms/r1", []byte(`{"clock":2}`)))
	got, err = store.Get(ctx, "rooms/r1")
	require.NoError(t, err)
	assert.Equal(t, `{"clock":2}`, string(got), "put should replace the previous value")
}

func TestRedisStore_MissingKey(t *testing.T) {
	store, _ := newRedisStore(t)

	got, err := store.Get(context.Background(), "rooms/none")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	store, mr := newRedisStore(t, storage.WithRedisPrefix("test:"), storage.WithRedisTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))
	assert.Equal(t, "test:", store.Prefix())
}

func TestRedisStore_Closed(t *testing.T) {
	store, _ := newRedisStore(t)
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrStoreClosed)
	assert.ErrorIs(t, store.Put(context.Background(), "k", nil), storage.ErrStoreClosed)
}

func TestRedisStore_BackendError(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.SetError("LOADING")

	_, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, store.Put(context.Background(), "k", []byte("v")))
}
