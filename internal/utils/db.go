// 包 utils：外部连接与证书工具
package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hex-territory/internal/config"
	"hex-territory/internal/logger"

	_ "github.com/lib/pq"
)

// OpenPostgres：按配置打开连接池并探活
// 约束：探活失败时关闭连接池并返回错误，调用方不需要再 Close
func OpenPostgres(ctx context.Context, c config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping %s:%s: %w", c.Host, c.Port, err)
	}
	logger.L().Debug("postgres_open", "host", c.Host, "db", c.DB, "max_open", c.MaxOpenConns)
	return db, nil
}
