package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hex-territory/internal/config"
	"hex-territory/internal/logger"
	"hex-territory/internal/raster"
	"hex-territory/internal/replay"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
	"hex-territory/internal/store/cache"
	"hex-territory/internal/store/mem"
	"hex-territory/internal/store/pg"
	"hex-territory/internal/store/rds"
	"hex-territory/internal/store/sqlite"
	"hex-territory/internal/territory"

	"github.com/redis/go-redis/v9"
)

const memoryReplaySize = 1 << 16

// Runtime：服务与运维工具共用的依赖集合
type Runtime struct {
	Store  store.Store
	Redis  *redis.Client // 未使用 Redis 时为 nil
	Engine *territory.Engine

	ownsRedis bool
}

// Bootstrap：按配置打开存储后端、分片缓存与事件去重，并构建引擎
// 背景：Redis 在存储后端为 redis 或开启事件消费时才连接；去重记录优先放在 Redis 以便多实例共享
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	l := logger.L()
	rt := &Runtime{}
	if cfg.Backend == config.BackendRedis || cfg.Events.Enabled {
		rdb, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rt.Redis = rdb
		rt.ownsRedis = cfg.Backend != config.BackendRedis
	}

	base, err := openStore(ctx, cfg, rt.Redis)
	if err != nil {
		rt.closeRedis()
		return nil, err
	}
	l.Info("store_open_ok", "backend", cfg.Backend)
	rt.Store = base
	if cfg.ShardCacheSize > 0 && cfg.ShardCacheTTLSec > 0 {
		rt.Store = cache.New(base, cfg.ShardCacheSize, time.Duration(cfg.ShardCacheTTLSec)*time.Second)
		l.Debug("shard_cache_on", "size", cfg.ShardCacheSize, "ttl_s", cfg.ShardCacheTTLSec)
	}

	ttl := time.Duration(cfg.ReplayTTLSec) * time.Second
	var guard territory.ReplayGuard
	if rt.Redis != nil {
		guard = replay.NewRedis(rt.Redis, cfg.Redis.Prefix, ttl)
	} else {
		guard = replay.NewMemory(memoryReplaySize, ttl)
	}

	retries := cfg.Commit.MaxRetries
	if retries == 0 {
		retries = -1
	}
	rt.Engine, err = territory.New(territory.Options{
		Grid: spatial.Grid{CaptureRes: cfg.Grid.CaptureRes, RegionRes: cfg.Grid.RegionRes},
		Raster: raster.Rasterizer{
			CloseToleranceMeters: cfg.Raster.CloseToleranceMeters,
			MaxFillCells:         cfg.Raster.MaxFillCells,
			MaxPathPoints:        cfg.Raster.MaxPathPoints,
		},
		Store:              rt.Store,
		Replay:             guard,
		Workers:            cfg.Commit.Workers,
		MaxRetries:         retries,
		MaxViewportRegions: cfg.ViewportMaxRegions,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return mem.New(), nil
	case config.BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s, err := pg.Open(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		return rds.New(rdb, cfg.Redis.Prefix), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func (rt *Runtime) closeRedis() error {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}

// Close：关闭存储与独立持有的 Redis 客户端；redis 后端下客户端随存储一并关闭
func (rt *Runtime) Close() error {
	var errList []error
	if rt.Store != nil {
		errList = append(errList, rt.Store.Close())
	}
	if rt.ownsRedis || rt.Store == nil {
		errList = append(errList, rt.closeRedis())
	}
	return errors.Join(errList...)
}
