package utils

import (
	"context"
	"fmt"
	"time"

	"hex-territory/internal/config"
	"hex-territory/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置打开 Redis 客户端并探活
func OpenRedis(ctx context.Context, c config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr(), Password: c.Pass, DB: c.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr(), err)
	}
	logger.L().Debug("redis_open", "addr", c.Addr(), "db", c.DB)
	return rdb, nil
}
