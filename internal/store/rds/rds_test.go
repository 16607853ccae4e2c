package rds

import (
	"context"
	"os"
	"testing"
	"time"

	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
	"hex-territory/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestShardBodyPreservesCaptureTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	in := shardBody{
		Territories: map[spatial.CellID]store.TerritoryRecord{"8a1f0d4e0007fff": {Owner: "alice", Color: "#010203", CapturedAt: at, Method: store.MethodPath}},
		Metadata:    store.ShardMeta{HexCount: 1, LastUpdate: at, PlayerCounts: map[string]int{"alice": 1}, ContestedBy: []string{"alice"}},
	}
	b1, err := marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b2, _ := marshal(in)
	if string(b1) != string(b2) {
		t.Error("encoding is not deterministic")
	}
	sh, err := decodeShard("861f0d4e7ffffff", 4, b1)
	if err != nil {
		t.Fatalf("decodeShard: %v", err)
	}
	rec := sh.Territories["8a1f0d4e0007fff"]
	if !rec.CapturedAt.Equal(at) || rec.Owner != "alice" || rec.Method != store.MethodPath {
		t.Errorf("record = %+v", rec)
	}
	if sh.Version != 4 || sh.Metadata.PlayerCounts["alice"] != 1 {
		t.Errorf("shard = %+v", sh)
	}
}

func TestParseHash(t *testing.T) {
	if _, _, ok := parseHash([]any{nil, nil}); ok {
		t.Error("missing hash reported present")
	}
	v, d, ok := parseHash([]any{"7", "xyz"})
	if !ok || v != 7 || string(d) != "xyz" {
		t.Errorf("parseHash = %d %q %v", v, d, ok)
	}
}

// 需要外部 Redis：设置 REDIS_TEST_ADDR 后执行，键使用随机前缀
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	s := New(rdb, "test:"+uuid.NewString())
	defer s.Close()
	storetest.Run(t, s)
}
