package territory

import (
	"hex-territory/internal/raster"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// PathOptions：闭环判定参数，与栅格化选项同形
type PathOptions = raster.Options

// PathSubmission：一次路径捕获请求
type PathSubmission struct {
	User        string               `json:"user"`
	Color       string               `json:"color"`
	Coordinates []spatial.Coordinate `json:"coordinates"`
	Options     PathOptions          `json:"options"`
}

// ClickSubmission：单击捕获一个格子
type ClickSubmission struct {
	User       string             `json:"user"`
	Color      string             `json:"color"`
	Coordinate spatial.Coordinate `json:"coordinate"`
}

// CaptureResult：路径/单击捕获结果
// 约束：HexesCaptured = BoundaryHexes + InteriorHexes；RegionsAffected 与 AppliedCount 只反映确实落库的部分
type CaptureResult struct {
	ID              string                    `json:"id"`
	PathType        raster.PathType           `json:"pathType"`
	HexPath         []spatial.CellID          `json:"hexPath"`
	UniqueHexes     int                       `json:"uniqueHexes"`
	LoopClosed      bool                      `json:"loopClosed"`
	HexesCaptured   int                       `json:"hexesCaptured"`
	BoundaryHexes   int                       `json:"boundaryHexes"`
	InteriorHexes   int                       `json:"interiorHexes"`
	AppliedCount    int                       `json:"appliedCount"`
	RegionsAffected []spatial.RegionID        `json:"regionsAffected"`
	Conflicts       map[spatial.CellID]string `json:"conflicts"`
	ProcessingTime  int64                     `json:"processingTime"` // 毫秒
}

// Takeover：批量更新中的一次易主
type Takeover struct {
	Previous string `json:"previous"`
	New      string `json:"new"`
}

// BatchResult：批量更新汇总
type BatchResult struct {
	Updated         int                         `json:"updated"`
	Users           int                         `json:"users"`
	RegionsAffected []spatial.RegionID          `json:"regionsAffected"`
	Conflicts       map[spatial.CellID]Takeover `json:"conflicts"`
}

// ViewportResult：视口查询结果；Regions 只含已存在的分片
type ViewportResult struct {
	Regions    map[spatial.RegionID]*store.Shard `json:"regions"`
	RegionIDs  []spatial.RegionID                `json:"regionIds"`
	TotalHexes int                               `json:"totalHexes"`
}
