// 包 cache：分片读缓存装饰器，只服务视口查询
// 约束：LoadShard（提交路径）始终直达底层存储，保证读改写基于最新版本；
// LoadShards 命中缓存可能返回 TTL 内的旧快照；SaveShard 成功后刷新对应条目
package cache

import (
	"context"
	"errors"
	"time"

	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

type Store struct {
	store.Store
	lru *LRU[spatial.RegionID, *store.Shard]
}

func New(inner store.Store, size int, ttl time.Duration) *Store {
	return &Store{Store: inner, lru: NewLRU[spatial.RegionID, *store.Shard](size, ttl)}
}

func (c *Store) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	out := make(map[spatial.RegionID]*store.Shard, len(ids))
	var miss []spatial.RegionID
	for _, id := range ids {
		if sh, ok := c.lru.Get(id); ok {
			metrics.ShardCacheHitsTotal.Inc()
			out[id] = sh.Clone()
			continue
		}
		miss = append(miss, id)
	}
	if len(miss) == 0 {
		return out, nil
	}
	metrics.ShardCacheMissesTotal.Add(float64(len(miss)))
	loaded, err := c.Store.LoadShards(ctx, miss)
	if err != nil {
		return nil, err
	}
	for id, sh := range loaded {
		c.lru.Set(id, sh.Clone())
		out[id] = sh
	}
	return out, nil
}

func (c *Store) SaveShard(ctx context.Context, sh *store.Shard) error {
	if err := c.Store.SaveShard(ctx, sh); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			c.lru.Delete(sh.ID)
		}
		return err
	}
	c.lru.Set(sh.ID, sh.Clone())
	return nil
}
