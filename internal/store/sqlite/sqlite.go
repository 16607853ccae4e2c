// 包 sqlite：单文件持久化后端（modernc.org/sqlite，纯 Go 驱动）；表结构与 pg 后端一致
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hex-territory/internal/migrate"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open：打开或创建数据库文件并建表
// 约束：单连接写入，避免 SQLITE_BUSY；WAL 模式下读不阻塞写
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate.EnsureSchema(ctx, db, migrate.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func nowText() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Store) LoadShard(ctx context.Context, id spatial.RegionID) (*store.Shard, error) {
	var (
		version int64
		data    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM territory_shards WHERE id = ?`, string(id)).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load shard %s: %w", id, err)
	}
	return store.UnmarshalShardData(id, version, []byte(data))
}

func (s *Store) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	out := make(map[spatial.RegionID]*store.Shard, len(ids))
	// SQLite 默认变量上限 999，分批查询
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = string(id)
		}
		q := `SELECT id, version, data FROM territory_shards WHERE id IN (?` +
			strings.Repeat(",?", len(part)-1) + `)`
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("load shards: %w", err)
		}
		for rows.Next() {
			var (
				id      string
				version int64
				data    string
			)
			if err := rows.Scan(&id, &version, &data); err != nil {
				rows.Close()
				return nil, err
			}
			sh, err := store.UnmarshalShardData(spatial.RegionID(id), version, []byte(data))
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[sh.ID] = sh
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) SaveShard(ctx context.Context, sh *store.Shard) error {
	data, err := store.MarshalShardData(sh)
	if err != nil {
		return err
	}
	var res sql.Result
	if sh.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO territory_shards(id, version, hex_count, data, updated_at) VALUES(?, 1, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			string(sh.ID), sh.Metadata.HexCount, string(data), nowText())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE territory_shards SET version = version + 1, hex_count = ?, data = ?, updated_at = ?
			 WHERE id = ? AND version = ?`,
			sh.Metadata.HexCount, string(data), nowText(), string(sh.ID), sh.Version)
	}
	if err != nil {
		return fmt.Errorf("save shard %s: %w", sh.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrVersionConflict
	}
	sh.Version++
	return nil
}

func (s *Store) ListShardIDs(ctx context.Context) ([]spatial.RegionID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM territory_shards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	defer rows.Close()
	var ids []spatial.RegionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, spatial.RegionID(id))
	}
	return ids, rows.Err()
}

func (s *Store) LoadProfile(ctx context.Context, user string) (*store.Profile, error) {
	var (
		version int64
		data    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM territory_profiles WHERE user_id = ?`, user).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", user, err)
	}
	return store.UnmarshalProfile(version, []byte(data))
}

func (s *Store) SaveProfile(ctx context.Context, p *store.Profile) error {
	data, err := store.MarshalProfile(p)
	if err != nil {
		return err
	}
	var res sql.Result
	if p.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO territory_profiles(user_id, version, data, updated_at) VALUES(?, 1, ?, ?)
			 ON CONFLICT(user_id) DO NOTHING`, p.User, string(data), nowText())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE territory_profiles SET version = version + 1, data = ?, updated_at = ?
			 WHERE user_id = ? AND version = ?`, string(data), nowText(), p.User, p.Version)
	}
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.User, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrVersionConflict
	}
	p.Version++
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
