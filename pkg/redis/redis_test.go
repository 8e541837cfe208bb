package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdapter(t *testing.T, prefix string) (*miniredis.Miniredis, RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	adapter, err := NewRedisAdapter(t.Name()+"-"+mr.Addr(), prefix, &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

func TestRedisAdapter_KeyOperations(t *testing.T) {
	mr, adapter := setupAdapter(t, "trains:")
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("trains:k"))

	v, err := adapter.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	ok, err := adapter.SetNX(ctx, "k", []byte("other"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := adapter.Exist(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, adapter.Del(ctx, "k"))
	_, err = adapter.Get(ctx, "k")
	assert.ErrorIs(t, err, NilError)
}

func TestRedisAdapter_SameNameReturnsCachedAdapter(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := &goredis.UniversalOptions{Addrs: []string{mr.Addr()}}

	a, err := NewRedisAdapter(t.Name(), "", opts)
	require.NoError(t, err)
	b, err := NewRedisAdapter(t.Name(), "", opts)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Same(t, a, GetRedis(t.Name()))
}

func TestRedisAdapter_StreamGroupLifecycle(t *testing.T) {
	_, adapter := setupAdapter(t, "")
	ctx := context.Background()

	require.NoError(t, adapter.XGroupCreateMkStream(ctx, "events", "g", "0"))

	id, err := adapter.XAdd(ctx, "events", map[string]interface{}{"data": "payload"})
	require.NoError(t, err)

	msgs, err := adapter.XReadGroup(ctx, "g", "c1", "events", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "payload", msgs[0].Values["data"])

	count, consumers, err := adapter.XPendingCount(ctx, "events", "g")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(1), consumers)

	pending, err := adapter.XPendingExt(ctx, "events", "g", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].Consumer)

	claimed, err := adapter.XClaim(ctx, "events", "g", "c2", 0, id)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, adapter.XAck(ctx, "events", "g", id))
	count, _, err = adapter.XPendingCount(ctx, "events", "g")
	require.NoError(t, err)
	assert.Zero(t, count)

	length, err := adapter.XLen(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}
