package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"hex-territory/internal/logger"
)

// Dialect：建表语句差异只在 JSON 列类型与时间默认值
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// Statements：按方言返回建表与索引语句
func Statements(d Dialect) []string {
	jsonType, tsType, now := "JSONB", "TIMESTAMPTZ", "now()"
	if d == SQLite {
		jsonType, tsType, now = "TEXT", "TEXT", "CURRENT_TIMESTAMP"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS territory_shards (
			id TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			hex_count INTEGER NOT NULL DEFAULT 0,
			data ` + jsonType + ` NOT NULL,
			updated_at ` + tsType + ` NOT NULL DEFAULT ` + now + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_territory_shards_updated ON territory_shards(updated_at)`,
		`CREATE TABLE IF NOT EXISTS territory_profiles (
			user_id TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			data ` + jsonType + ` NOT NULL,
			updated_at ` + tsType + ` NOT NULL DEFAULT ` + now + `
		)`,
	}
}

// EnsureSchema：首次运行自动创建所需表与索引
// 约束：使用 IF NOT EXISTS，重复执行无副作用
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for i, s := range Statements(d) {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
