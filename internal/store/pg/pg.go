// 包 pg：PostgreSQL 后端；分片与画像各一张表，主体以 JSONB 存储，version 列做比较并交换
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hex-territory/internal/migrate"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	"github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

// Open：确保表结构存在后返回存储；db 生命周期归 Store 所有
func Open(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := migrate.EnsureSchema(ctx, db, migrate.Postgres); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) LoadShard(ctx context.Context, id spatial.RegionID) (*store.Shard, error) {
	var (
		version int64
		data    []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM territory_shards WHERE id = $1`, string(id)).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load shard %s: %w", id, err)
	}
	return store.UnmarshalShardData(id, version, data)
}

func (s *Store) LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*store.Shard, error) {
	out := make(map[spatial.RegionID]*store.Shard, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, data FROM territory_shards WHERE id = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("load shards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id      string
			version int64
			data    []byte
		)
		if err := rows.Scan(&id, &version, &data); err != nil {
			return nil, err
		}
		sh, err := store.UnmarshalShardData(spatial.RegionID(id), version, data)
		if err != nil {
			return nil, err
		}
		out[sh.ID] = sh
	}
	return out, rows.Err()
}

// SaveShard：JSON 以文本参数传入（lib/pq 对 []byte 按 bytea 编码）；version 0 走 INSERT ... ON CONFLICT DO NOTHING，其余走带版本条件的 UPDATE
// 约束：影响行数为 0 即判定为版本冲突
func (s *Store) SaveShard(ctx context.Context, sh *store.Shard) error {
	data, err := store.MarshalShardData(sh)
	if err != nil {
		return err
	}
	var res sql.Result
	if sh.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO territory_shards(id, version, hex_count, data, updated_at)
			 VALUES($1, 1, $2, $3, now())
			 ON CONFLICT (id) DO NOTHING`,
			string(sh.ID), sh.Metadata.HexCount, string(data))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE territory_shards
			 SET version = version + 1, hex_count = $3, data = $4, updated_at = now()
			 WHERE id = $1 AND version = $2`,
			string(sh.ID), sh.Version, sh.Metadata.HexCount, string(data))
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
		data    []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM territory_profiles WHERE user_id = $1`, user).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", user, err)
	}
	return store.UnmarshalProfile(version, data)
}

func (s *Store) SaveProfile(ctx context.Context, p *store.Profile) error {
	data, err := store.MarshalProfile(p)
	if err != nil {
		return err
	}
	var res sql.Result
	if p.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO territory_profiles(user_id, version, data, updated_at)
			 VALUES($1, 1, $2, now())
			 ON CONFLICT (user_id) DO NOTHING`, p.User, string(data))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE territory_profiles SET version = version + 1, data = $3, updated_at = now()
			 WHERE user_id = $1 AND version = $2`, p.User, p.Version, string(data))
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
