// 包 storetest：各存储后端共用的行为校验
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// Run：对 s 执行完整的接口约定校验；s 须为空库
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("ShardNotFound", func(t *testing.T) { shardNotFound(t, s) })
	t.Run("ShardCreateAndCAS", func(t *testing.T) { shardCreateAndCAS(t, s) })
	t.Run("LoadShardsSkipsMissing", func(t *testing.T) { loadShardsSkipsMissing(t, s) })
	t.Run("LoadedShardIsOwned", func(t *testing.T) { loadedShardIsOwned(t, s) })
	t.Run("ProfileCAS", func(t *testing.T) { profileCAS(t, s) })
}

func sample(id spatial.RegionID, owner string) *store.Shard {
	sh := store.NewShard(id)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sh.Territories[spatial.CellID("cell-"+owner)] = store.TerritoryRecord{
		Owner: owner, Color: "#123456", CapturedAt: now, Method: store.MethodClick,
	}
	sh.Metadata.PlayerCounts[owner] = 1
	sh.Metadata.LastUpdate = now
	sh.AddContender(owner)
	sh.Recount()
	return sh
}

func shardNotFound(t *testing.T, s store.Store) {
	_, err := s.LoadShard(context.Background(), "missing-region")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadShard(missing) error = %v, want ErrNotFound", err)
	}
}

func shardCreateAndCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	sh := sample("region-a", "alice")
	if err := s.SaveShard(ctx, sh); err != nil {
		t.Fatalf("SaveShard(create): %v", err)
	}
	if sh.Version != 1 {
		t.Fatalf("Version after create = %d, want 1", sh.Version)
	}
	dup := sample("region-a", "bob")
	if err := s.SaveShard(ctx, dup); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("second create error = %v, want ErrVersionConflict", err)
	}

	a, err := s.LoadShard(ctx, "region-a")
	if err != nil {
		t.Fatalf("LoadShard: %v", err)
	}
	b, _ := s.LoadShard(ctx, "region-a")
	a.Territories["cell-x"] = store.TerritoryRecord{Owner: "alice", Method: store.MethodPath}
	a.Recount()
	if err := s.SaveShard(ctx, a); err != nil {
		t.Fatalf("SaveShard(update): %v", err)
	}
	b.Territories["cell-y"] = store.TerritoryRecord{Owner: "bob", Method: store.MethodPath}
	b.Recount()
	if err := s.SaveShard(ctx, b); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("stale update error = %v, want ErrVersionConflict", err)
	}

	got, err := s.LoadShard(ctx, "region-a")
	if err != nil {
		t.Fatalf("LoadShard: %v", err)
	}
	if got.Version != 2 || got.Metadata.HexCount != 2 || len(got.Territories) != 2 {
		t.Errorf("stored shard version=%d hexCount=%d territories=%d, want 2/2/2",
			got.Version, got.Metadata.HexCount, len(got.Territories))
	}
	if _, ok := got.Territories["cell-y"]; ok {
		t.Errorf("stale write leaked into stored shard")
	}
	rec := got.Territories["cell-alice"]
	if rec.Owner != "alice" || rec.Color != "#123456" || rec.Method != store.MethodClick || rec.CapturedAt.IsZero() {
		t.Errorf("record round trip = %+v", rec)
	}

	ids, err := s.ListShardIDs(ctx)
	if err != nil {
		t.Fatalf("ListShardIDs: %v", err)
	}
	found := false
	for _, id := range ids {
		found = found || id == "region-a"
	}
	if !found {
		t.Errorf("ListShardIDs = %v, missing region-a", ids)
	}
}

func loadShardsSkipsMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.SaveShard(ctx, sample("region-b", "carol")); err != nil {
		t.Fatalf("SaveShard: %v", err)
	}
	got, err := s.LoadShards(ctx, []spatial.RegionID{"region-b", "region-none"})
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if len(got) != 1 || got["region-b"] == nil {
		t.Errorf("LoadShards = %v, want only region-b", got)
	}
	empty, err := s.LoadShards(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("LoadShards(nil) = %v, %v", empty, err)
	}
}

func loadedShardIsOwned(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.SaveShard(ctx, sample("region-c", "dave")); err != nil {
		t.Fatalf("SaveShard: %v", err)
	}
	a, _ := s.LoadShard(ctx, "region-c")
	a.Territories["cell-z"] = store.TerritoryRecord{Owner: "mallory"}
	b, _ := s.LoadShard(ctx, "region-c")
	if _, ok := b.Territories["cell-z"]; ok {
		t.Errorf("unsaved modification visible to another reader")
	}
}

func profileCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.LoadProfile(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadProfile(missing) error = %v, want ErrNotFound", err)
	}
	p := &store.Profile{User: "alice", Color: "#abcdef", CreatedAt: time.Now().UTC()}
	p.Stats.TotalCaptures = 1
	p.AddRegions("region-a")
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile(create): %v", err)
	}
	if p.Version != 1 {
		t.Errorf("Version after create = %d, want 1", p.Version)
	}
	stale := &store.Profile{User: "alice"}
	if err := s.SaveProfile(ctx, stale); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("duplicate create error = %v, want ErrVersionConflict", err)
	}
	got, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got.Version != 1 || got.Color != "#abcdef" || got.Stats.TotalRegions != 1 || len(got.ActiveRegions) != 1 {
		t.Errorf("profile round trip = %+v", got)
	}
	got.Stats.TotalCaptures++
	if err := s.SaveProfile(ctx, got); err != nil {
		t.Fatalf("SaveProfile(update): %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version after update = %d, want 2", got.Version)
	}
}
