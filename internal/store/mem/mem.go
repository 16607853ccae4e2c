// 包 mem：进程内存储后端；测试与单机演示使用
package mem

import (
	"context"
	"slices"
	"sync"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// Store：读写锁保护的两张映射；所有出入对象均深拷贝
type Store struct {
	mu       sync.RWMutex
	shards   map[spatial.RegionID]*store.Shard
	profiles map[string]*store.Profile
}

func New() *Store {
	return &Store{
		shards:   make(map[spatial.RegionID]*store.Shard),
		profiles: make(map[string]*store.Profile),
	}
}

func (m *Store) LoadShard(ctx context.Context, id spatial.RegionID) (*store.Shard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Store) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[spatial.RegionID]*store.Shard, len(ids))
	for _, id := range ids {
		if s, ok := m.shards[id]; ok {
			out[id] = s.Clone()
		}
	}
	return out, nil
}

func (m *Store) SaveShard(ctx context.Context, s *store.Shard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.shards[s.ID]
	switch {
	case !ok && s.Version != 0:
		return store.ErrVersionConflict
	case ok && cur.Version != s.Version:
		return store.ErrVersionConflict
	}
	s.Version++
	m.shards[s.ID] = s.Clone()
	return nil
}

func (m *Store) ListShardIDs(ctx context.Context) ([]spatial.RegionID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]spatial.RegionID, 0, len(m.shards))
	for id := range m.shards {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *Store) LoadProfile(ctx context.Context, user string) (*store.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[user]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Store) SaveProfile(ctx context.Context, p *store.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[p.User]
	switch {
	case !ok && p.Version != 0:
		return store.ErrVersionConflict
	case ok && cur.Version != p.Version:
		return store.ErrVersionConflict
	}
	p.Version++
	m.profiles[p.User] = p.Clone()
	return nil
}

func (m *Store) Close() error { return nil }
