// 包 replay：事件去重记录；至少一次投递下同一事件号只提交一次
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hex-territory/internal/store/cache"
	"hex-territory/internal/territory"

	"github.com/redis/go-redis/v9"
)

// Memory：进程内 LRU + TTL，单实例部署与测试使用
type Memory struct {
	lru *cache.LRU[string, *territory.EventResult]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: cache.NewLRU[string, *territory.EventResult](size, ttl)}
}

func (m *Memory) Lookup(_ context.Context, id string) (*territory.EventResult, bool, error) {
	r, ok := m.lru.Get(id)
	return r, ok, nil
}

func (m *Memory) Remember(_ context.Context, id string, res *territory.EventResult) error {
	m.lru.SetIfAbsent(id, res)
	return nil
}

// Redis：SET NX + TTL 存储 JSON 结果，多实例共享
// 约束：首个写入者胜出，后续 Remember 不覆盖
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id string) string { return r.prefix + ":event:" + id }

func (r *Redis) Lookup(ctx context.Context, id string) (*territory.EventResult, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("replay lookup: %w", err)
	}
	var res territory.EventResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, false, fmt.Errorf("replay decode %s: %w", id, err)
	}
	return &res, true, nil
}

func (r *Redis) Remember(ctx context.Context, id string, res *territory.EventResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := r.rdb.SetNX(ctx, r.key(id), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("replay remember: %w", err)
	}
	return nil
}
