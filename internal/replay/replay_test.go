package replay

import (
	"context"
	"os"
	"testing"
	"time"

	"hex-territory/internal/territory"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func exercise(t *testing.T, g territory.ReplayGuard) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	if _, found, err := g.Lookup(ctx, id); err != nil || found {
		t.Fatalf("Lookup(unknown) found=%v err=%v", found, err)
	}
	first := &territory.EventResult{EventID: id, Kind: territory.KindHexClick, Capture: &territory.CaptureResult{ID: "a", AppliedCount: 1}}
	if err := g.Remember(ctx, id, first); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	second := &territory.EventResult{EventID: id, Kind: territory.KindHexClick, Capture: &territory.CaptureResult{ID: "b"}}
	if err := g.Remember(ctx, id, second); err != nil {
		t.Fatalf("Remember again: %v", err)
	}
	got, found, err := g.Lookup(ctx, id)
	if err != nil || !found {
		t.Fatalf("Lookup found=%v err=%v", found, err)
	}
	if got.Capture == nil || got.Capture.ID != "a" {
		t.Errorf("Lookup = %+v, want first remembered result", got)
	}
}

func TestMemoryGuard(t *testing.T) {
	exercise(t, NewMemory(16, time.Minute))
}

func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	exercise(t, NewRedis(rdb, "test:"+uuid.NewString(), time.Minute))
}
