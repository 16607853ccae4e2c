package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"hex-territory/internal/store/storetest"

	_ "github.com/lib/pq"
)

// 需要外部数据库：设置 PG_TEST_DSN 后执行，库中已有的 territory_* 表会被清空
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	ctx := context.Background()
	s, err := Open(ctx, db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := db.ExecContext(ctx, `TRUNCATE territory_shards, territory_profiles`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	storetest.Run(t, s)
}
