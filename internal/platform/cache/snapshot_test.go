package cache

import (
	"context"
	"testing"
	"time"

	"codenvibe/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisSnapshotStoreRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSnapshotStore(rdb, "", time.Minute)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	entries := []model.LeaderboardEntry{{Rank: 1, TeamID: "t1", TeamName: "Segfault Squad", Score: 80, SolvedCount: 1, Year: 1}}
	require.NoError(t, store.Put(ctx, 1, entries))

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Segfault Squad", got[0].TeamName)
	assert.Equal(t, 80, got[0].Score)

	_, ok, err = store.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "cohorts are cached independently")

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "snapshot expires after the ttl")
}

func TestRedisSnapshotStoreEmptyBoard(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisSnapshotStore(rdb, "test:", 0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 3, nil))
	got, ok, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestMemorySnapshotStoreCopies(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()
	entries := []model.LeaderboardEntry{{TeamID: "t1", Score: 10}}
	require.NoError(t, store.Put(ctx, 1, entries))
	entries[0].Score = 99

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, got[0].Score)
}
