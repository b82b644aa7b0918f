package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Ticker string  `json:"ticker"`
	Proba  float64 `json:"proba"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.Set(ctx, "spy", entry{Ticker: "SPY", Proba: 0.61}, time.Minute))
	require.NoError(t, mc.Set(ctx, "plain", "hello", time.Minute))

	var got entry
	require.NoError(t, mc.Get(ctx, "spy", &got))
	assert.Equal(t, entry{Ticker: "SPY", Proba: 0.61}, got)

	var s string
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "hello", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiryAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, mc.Set(ctx, "short", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "forever", 2, 0))
	now = now.Add(time.Minute)

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "short", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "forever", &v))
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, mc.Len())

	require.NoError(t, mc.Delete(ctx, "forever", "absent"))
	assert.ErrorIs(t, mc.Get(ctx, "forever", &v), ErrCacheMiss)
}

func TestMemoryCacheMGetTyped(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.MSet(ctx, map[string]interface{}{
		"a": entry{Ticker: "AAPL", Proba: 0.4},
		"b": entry{Ticker: "MSFT", Proba: 0.7},
	}, time.Minute))

	got, err := MGetTyped[entry](ctx, mc, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got["b"].Ticker)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.NoError(t, mc.Get(ctx, "c", &v))
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheLockExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))

	ok, err := mc.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	now = now.Add(2 * time.Second)
	ok, err = mc.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestRedisCachePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, "finsignal")

	mock.ExpectSet("finsignal:summary:SPY", []byte(`{"ticker":"SPY","proba":0.5}`), time.Hour).SetVal("OK")
	mock.ExpectGet("finsignal:summary:SPY").SetVal(`{"ticker":"SPY","proba":0.5}`)
	mock.ExpectGet("finsignal:summary:QQQ").RedisNil()
	mock.ExpectSetNX("finsignal:lock", "locked", time.Minute).SetVal(true)

	require.NoError(t, rc.Set(ctx, "summary:SPY", entry{Ticker: "SPY", Proba: 0.5}, time.Hour))

	var got entry
	require.NoError(t, rc.Get(ctx, "summary:SPY", &got))
	assert.Equal(t, "SPY", got.Ticker)

	assert.ErrorIs(t, rc.Get(ctx, "summary:QQQ", &got), ErrCacheMiss)

	ok, err := rc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheMGet(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, "fs")

	mock.ExpectMGet("fs:a", "fs:b").SetVal([]interface{}{`{"ticker":"A","proba":0.1}`, nil})
	mock.ExpectDel("fs:lock").SetVal(1)

	got, err := MGetTyped[entry](ctx, rc, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]entry{"a": {Ticker: "A", Proba: 0.1}}, got)
	require.NoError(t, rc.Unlock(ctx, "lock"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "summary:SPY", JoinKey("summary", "SPY"))
}
