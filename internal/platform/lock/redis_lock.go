package lock

import (
	"context"
	"fmt"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a SET NX PX lock shared by every API replica. The TTL bounds
// how long a crashed holder can block a team.
type RedisLocker struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "codenvibe:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retryDelay: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w: %v", key, common.ErrLockFailed, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w: %v", key, common.ErrLockFailed, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	return func() {
		// Release even when the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		deleted, err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Int64()
		if err != nil {
			logger.Error(ctx, "failed to release team lock", zap.String("key", redisKey), zap.Error(err))
			return
		}
		if deleted == 0 {
			logger.Warn(ctx, "team lock expired before release", zap.String("key", redisKey))
		}
	}, nil
}
