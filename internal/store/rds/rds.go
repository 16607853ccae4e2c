// 包 rds：Redis 后端；每个分片/画像一个哈希（v=版本，d=CBOR 主体），WATCH/MULTI 实现比较并交换
package rds

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	fieldVersion = "v"
	fieldData    = "d"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

// New：prefix 为键命名空间，如 "territory"
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) shardKey(id spatial.RegionID) string { return s.prefix + ":shard:" + string(id) }
func (s *Store) indexKey() string                    { return s.prefix + ":shards" }
func (s *Store) profileKey(user string) string       { return s.prefix + ":profile:" + user }

type shardBody struct {
	Territories map[spatial.CellID]store.TerritoryRecord `cbor:"t"`
	Metadata    store.ShardMeta                          `cbor:"m"`
}

func decodeShard(id spatial.RegionID, version int64, data []byte) (*store.Shard, error) {
	var b shardBody
	if err := unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", id, err)
	}
	sh := store.NewShard(id)
	sh.Version = version
	if b.Territories != nil {
		sh.Territories = b.Territories
	}
	sh.Metadata = b.Metadata
	if sh.Metadata.PlayerCounts == nil {
		sh.Metadata.PlayerCounts = make(map[string]int)
	}
	return sh, nil
}

func (s *Store) LoadShard(ctx context.Context, id spatial.RegionID) (*store.Shard, error) {
	vals, err := s.rdb.HMGet(ctx, s.shardKey(id), fieldVersion, fieldData).Result()
	if err != nil {
		return nil, fmt.Errorf("load shard %s: %w", id, err)
	}
	version, data, ok := parseHash(vals)
	if !ok {
		return nil, store.ErrNotFound
	}
	return decodeShard(id, version, data)
}

// LoadShards：单次管道批量读取
func (s *Store) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	out := make(map[spatial.RegionID]*store.Shard, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds := make([]*redis.SliceCmd, len(ids))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, s.shardKey(id), fieldVersion, fieldData)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load shards: %w", err)
	}
	for i, cmd := range cmds {
		version, data, ok := parseHash(cmd.Val())
		if !ok {
			continue
		}
		sh, err := decodeShard(ids[i], version, data)
		if err != nil {
			return nil, err
		}
		out[ids[i]] = sh
	}
	return out, nil
}

func (s *Store) SaveShard(ctx context.Context, sh *store.Shard) error {
	data, err := marshal(shardBody{Territories: sh.Territories, Metadata: sh.Metadata})
	if err != nil {
		return err
	}
	key := s.shardKey(sh.ID)
	err = s.cas(ctx, key, sh.Version, func(p redis.Pipeliner) {
		p.HSet(ctx, key, fieldVersion, sh.Version+1, fieldData, data)
		p.SAdd(ctx, s.indexKey(), string(sh.ID))
	})
	if err != nil {
		return err
	}
	sh.Version++
	return nil
}

func (s *Store) ListShardIDs(ctx context.Context) ([]spatial.RegionID, error) {
	members, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	ids := make([]spatial.RegionID, len(members))
	for i, m := range members {
		ids[i] = spatial.RegionID(m)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) LoadProfile(ctx context.Context, user string) (*store.Profile, error) {
	vals, err := s.rdb.HMGet(ctx, s.profileKey(user), fieldVersion, fieldData).Result()
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", user, err)
	}
	version, data, ok := parseHash(vals)
	if !ok {
		return nil, store.ErrNotFound
	}
	var p store.Profile
	if err := unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", user, err)
	}
	p.Version = version
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *store.Profile) error {
	data, err := marshal(p)
	if err != nil {
		return err
	}
	key := s.profileKey(p.User)
	err = s.cas(ctx, key, p.Version, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, fieldVersion, p.Version+1, fieldData, data)
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

// cas：WATCH key，校验版本字段后在 MULTI 中执行写入
// 约束：被并发修改导致事务失败时返回 ErrVersionConflict，由调用方重读重试
func (s *Store) cas(ctx context.Context, key string, expect int64, write func(redis.Pipeliner)) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, fieldVersion).Int64()
		switch {
		case errors.Is(err, redis.Nil):
			if expect != 0 {
				return store.ErrVersionConflict
			}
		case err != nil:
			return err
		case cur != expect:
			return store.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			write(p)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrVersionConflict
	}
	return err
}

func (s *Store) Close() error { return s.rdb.Close() }

// parseHash：HMGET 结果解析；任一字段缺失视为不存在
func parseHash(vals []any) (int64, []byte, bool) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, nil, false
	}
	vs, ok1 := vals[0].(string)
	ds, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return 0, nil, false
	}
	var v int64
	if _, err := fmt.Sscan(vs, &v); err != nil {
		return 0, nil, false
	}
	return v, []byte(ds), true
}
