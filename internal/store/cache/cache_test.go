package cache

import (
	"context"
	"testing"
	"time"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
	"hex-territory/internal/store/mem"
	"hex-territory/internal/store/storetest"
)

func TestLRUEvictsAndExpires(t *testing.T) {
	c := NewLRU[string, int](2, time.Minute)
	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry b not evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	clock = clock.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry returned")
	}
	if !c.SetIfAbsent("a", 9) || c.SetIfAbsent("a", 10) {
		t.Error("SetIfAbsent semantics")
	}
}

// countingStore：记录 LoadShards 下发的键数量
type countingStore struct {
	store.Store
	loads int
}

func (c *countingStore) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	c.loads += len(ids)
	return c.Store.LoadShards(ctx, ids)
}

func TestCacheServesViewportReads(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: mem.New()}
	c := New(inner, 16, time.Minute)

	sh := store.NewShard("r1")
	sh.Territories["cell"] = store.TerritoryRecord{Owner: "alice"}
	sh.Recount()
	if err := c.SaveShard(ctx, sh); err != nil {
		t.Fatalf("SaveShard: %v", err)
	}
	got, err := c.LoadShards(ctx, []spatial.RegionID{"r1", "r2"})
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if len(got) != 1 || inner.loads != 1 {
		t.Errorf("got %d shards with %d backend loads, want 1 shard and only the miss r2 loaded", len(got), inner.loads)
	}
	got["r1"].Territories["other"] = store.TerritoryRecord{Owner: "mallory"}
	again, _ := c.LoadShards(ctx, []spatial.RegionID{"r1"})
	if len(again["r1"].Territories) != 1 {
		t.Error("caller mutation leaked into cache")
	}

	// 提交路径不经缓存
	fresh, err := c.LoadShard(ctx, "r1")
	if err != nil || fresh.Version != 1 {
		t.Fatalf("LoadShard = %+v, %v", fresh, err)
	}
}

func TestCacheContract(t *testing.T) {
	storetest.Run(t, New(mem.New(), 64, time.Minute))
}
