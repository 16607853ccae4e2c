// 包 store：区域分片与用户画像的持久化抽象；具体后端位于 mem/pg/rds/sqlite 子包
package store

import (
	"context"
	"errors"

	"hex-territory/internal/spatial"
)

var (
	// ErrNotFound：键不存在
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict：比较并交换失败，另一写入者已先行提交
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store：按分片键与用户键的读写接口
// 约束：
// - Save* 为比较并交换：已存版本必须等于入参 Version，成功后入参 Version 自增；
// - Version 为 0 表示仅在不存在时创建；
// - Load* 返回的对象归调用方所有，修改不影响已存数据；
// - LoadShards 只返回已存在的分片，缺失键静默跳过。
type Store interface {
	LoadShard(ctx context.Context, id spatial.RegionID) (*Shard, error)
	LoadShards(ctx context.Context, ids []spatial.RegionID) (map[spatial.RegionID]*Shard, error)
	SaveShard(ctx context.Context, s *Shard) error
	ListShardIDs(ctx context.Context) ([]spatial.RegionID, error)
	LoadProfile(ctx context.Context, user string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
	Close() error
}
