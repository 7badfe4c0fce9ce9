package cache

import (
	"context"
	"fmt"
	"time"

	"codenvibe/internal/platform/config"
	"codenvibe/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

// ConnectRedis is a no-op when REDIS_ADDR is empty; callers check RDB.
func ConnectRedis() error {
	if config.AppConfig.RedisAddr == "" {
		return nil
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RDB.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info(ctx, "connected to Redis", zap.String("addr", config.AppConfig.RedisAddr))
	return nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logger.Info(context.Background(), "redis connection closed")
	}
}
