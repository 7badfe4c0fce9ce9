package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"codenvibe/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps the last ranked leaderboard per cohort so reads do not
// recompute.
type SnapshotStore interface {
	Get(ctx context.Context, year int) ([]model.LeaderboardEntry, bool, error)
	Put(ctx context.Context, year int, entries []model.LeaderboardEntry) error
}

type MemorySnapshotStore struct {
	mu     sync.RWMutex
	boards map[int][]model.LeaderboardEntry
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{boards: make(map[int][]model.LeaderboardEntry)}
}

func (s *MemorySnapshotStore) Get(_ context.Context, year int) ([]model.LeaderboardEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.boards[year]
	if !ok {
		return nil, false, nil
	}
	return append([]model.LeaderboardEntry(nil), entries...), true, nil
}

func (s *MemorySnapshotStore) Put(_ context.Context, year int, entries []model.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[year] = append([]model.LeaderboardEntry(nil), entries...)
	return nil
}

type RedisSnapshotStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSnapshotStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "codenvibe:leaderboard:"
	}
	return &RedisSnapshotStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshotStore) key(year int) string {
	return s.prefix + strconv.Itoa(year)
}

func (s *RedisSnapshotStore) Get(ctx context.Context, year int) ([]model.LeaderboardEntry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(year)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("RedisSnapshotStore.Get: %w", err)
	}
	var entries []model.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("RedisSnapshotStore.Get decode: %w", err)
	}
	return entries, true, nil
}

func (s *RedisSnapshotStore) Put(ctx context.Context, year int, entries []model.LeaderboardEntry) error {
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("RedisSnapshotStore.Put encode: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(year), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("RedisSnapshotStore.Put: %w", err)
	}
	return nil
}
