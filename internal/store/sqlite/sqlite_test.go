package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
	"hex-territory/internal/store/storetest"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "territory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, open(t))
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "territory.db")
	ctx := context.Background()
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sh := store.NewShard("region-x")
	sh.Territories["cell"] = store.TerritoryRecord{Owner: "alice", Method: store.MethodClick}
	sh.Recount()
	if err := s.SaveShard(ctx, sh); err != nil {
		t.Fatalf("SaveShard: %v", err)
	}
	_ = s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.LoadShard(ctx, "region-x")
	if err != nil {
		t.Fatalf("LoadShard: %v", err)
	}
	if got.Version != 1 || got.Metadata.HexCount != 1 {
		t.Errorf("reloaded shard version=%d hexCount=%d", got.Version, got.Metadata.HexCount)
	}
}

func TestSQLiteLoadShardsChunks(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	var ids []spatial.RegionID
	for i := 0; i < 1200; i++ {
		id := spatial.RegionID(fmt.Sprintf("region-%04d", i))
		ids = append(ids, id)
		if i%2 == 0 {
			if err := s.SaveShard(ctx, store.NewShard(id)); err != nil {
				t.Fatalf("SaveShard: %v", err)
			}
		}
	}
	got, err := s.LoadShards(ctx, ids)
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if len(got) != 600 {
		t.Errorf("LoadShards returned %d shards, want 600", len(got))
	}
}
