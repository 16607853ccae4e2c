package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"hex-territory/internal/spatial"
)

// Method：捕获方式
type Method string

const (
	MethodClick Method = "click"
	MethodPath  Method = "path"
	MethodBatch Method = "batch"
)

func (m Method) Valid() bool {
	switch m {
	case MethodClick, MethodPath, MethodBatch:
		return true
	}
	return false
}

// TerritoryRecord：单个格子的归属记录
type TerritoryRecord struct {
	Owner      string    `json:"owner"`
	Color      string    `json:"color"`
	CapturedAt time.Time `json:"capturedAt"`
	Method     Method    `json:"method"`
}

// ShardMeta：分片元数据
// 约束：HexCount 恒等于 len(Territories)，每次变更后由 Recount 重算；
// PlayerCounts 为玩家在本分片的累计捕获格子数；ContestedBy 为曾占有过格子的玩家（已排序）
type ShardMeta struct {
	HexCount     int            `json:"hexCount"`
	LastUpdate   time.Time      `json:"lastUpdate"`
	PlayerCounts map[string]int `json:"playerCounts"`
	ContestedBy  []string       `json:"contestedBy"`
}

// Shard：区域分片，存储与并发控制的基本单位
type Shard struct {
	ID          spatial.RegionID                   `json:"id"`
	Territories map[spatial.CellID]TerritoryRecord `json:"territories"`
	Metadata    ShardMeta                          `json:"metadata"`
	Version     int64                              `json:"version"`
}

func NewShard(id spatial.RegionID) *Shard {
	return &Shard{
		ID:          id,
		Territories: make(map[spatial.CellID]TerritoryRecord),
		Metadata:    ShardMeta{PlayerCounts: make(map[string]int)},
	}
}

// Recount：按实际记录数重算 HexCount
func (s *Shard) Recount() { s.Metadata.HexCount = len(s.Territories) }

// Check：校验元数据不变式，维护工具与测试使用
func (s *Shard) Check() error {
	if s.Metadata.HexCount != len(s.Territories) {
		return fmt.Errorf("shard %s: hexCount %d != territories %d", s.ID, s.Metadata.HexCount, len(s.Territories))
	}
	return nil
}

// AddContender：有序集合插入
func (s *Shard) AddContender(user string) {
	i, found := slices.BinarySearch(s.Metadata.ContestedBy, user)
	if !found {
		s.Metadata.ContestedBy = slices.Insert(s.Metadata.ContestedBy, i, user)
	}
}

// Clone：深拷贝，后端在读写边界使用以隔离调用方修改
func (s *Shard) Clone() *Shard {
	c := *s
	c.Territories = maps.Clone(s.Territories)
	if c.Territories == nil {
		c.Territories = make(map[spatial.CellID]TerritoryRecord)
	}
	c.Metadata.PlayerCounts = maps.Clone(s.Metadata.PlayerCounts)
	if c.Metadata.PlayerCounts == nil {
		c.Metadata.PlayerCounts = make(map[string]int)
	}
	c.Metadata.ContestedBy = slices.Clone(s.Metadata.ContestedBy)
	return &c
}

// ProfileStats：用户派生统计
type ProfileStats struct {
	TotalHexes     int64     `json:"totalHexes"`
	TotalRegions   int       `json:"totalRegions"`
	LargestCapture int       `json:"largestCapture"`
	TotalCaptures  int64     `json:"totalCaptures"`
	LastActive     time.Time `json:"lastActive"`
}

// Profile：用户画像；ActiveRegions 已排序
type Profile struct {
	User          string             `json:"user"`
	Color         string             `json:"color"`
	Stats         ProfileStats       `json:"stats"`
	ActiveRegions []spatial.RegionID `json:"activeRegions"`
	CreatedAt     time.Time          `json:"createdAt"`
	Version       int64              `json:"version"`
}

// AddRegions：并入活跃分片集合
func (p *Profile) AddRegions(ids ...spatial.RegionID) {
	for _, id := range ids {
		i, found := slices.BinarySearch(p.ActiveRegions, id)
		if !found {
			p.ActiveRegions = slices.Insert(p.ActiveRegions, i, id)
		}
	}
	p.Stats.TotalRegions = len(p.ActiveRegions)
}

func (p *Profile) Clone() *Profile {
	c := *p
	c.ActiveRegions = slices.Clone(p.ActiveRegions)
	return &c
}

// shardData：SQL 后端的 data 列内容（不含主键与版本）
type shardData struct {
	Territories map[spatial.CellID]TerritoryRecord `json:"territories"`
	Metadata    ShardMeta                          `json:"metadata"`
}

// MarshalShardData：分片主体序列化为 JSON，供 SQL 后端写入
func MarshalShardData(s *Shard) ([]byte, error) {
	return json.Marshal(shardData{Territories: s.Territories, Metadata: s.Metadata})
}

// UnmarshalShardData：由 JSON 主体与主键、版本还原分片
func UnmarshalShardData(id spatial.RegionID, version int64, b []byte) (*Shard, error) {
	var d shardData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", id, err)
	}
	s := &Shard{ID: id, Territories: d.Territories, Metadata: d.Metadata, Version: version}
	if s.Territories == nil {
		s.Territories = make(map[spatial.CellID]TerritoryRecord)
	}
	if s.Metadata.PlayerCounts == nil {
		s.Metadata.PlayerCounts = make(map[string]int)
	}
	return s, nil
}

// MarshalProfile / UnmarshalProfile：画像主体编解码（版本由存储列单独维护）
func MarshalProfile(p *Profile) ([]byte, error) { return json.Marshal(p) }

func UnmarshalProfile(version int64, b []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.Version = version
	return &p, nil
}
