// 包 spatial：坐标、格子、区域分片之间的纯函数换算（H3 六边形层级网格），无状态、可并发调用
package spatial

import (
	"math"

	"hex-territory/internal/errs"

	"github.com/uber/h3-go/v4"
)

// CellID：捕获分辨率下的格子编号（H3 索引十六进制串）
type CellID string

// RegionID：区域分辨率下的祖先格子编号，作为分片存储键
type RegionID string

// MaxResolution：H3 支持的最细分辨率
const MaxResolution = 15

// Coordinate：WGS84 经纬度（度）
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Grid：固定的分辨率阶梯；捕获分辨率必须比区域分辨率更细
// 约束：阶梯是部署常量，不随请求变化，否则同一格子可能落入不同分片
type Grid struct {
	CaptureRes int
	RegionRes  int
}

func NewGrid(captureRes, regionRes int) (Grid, error) {
	g := Grid{CaptureRes: captureRes, RegionRes: regionRes}
	return g, g.Validate()
}

func (g Grid) Validate() error {
	if err := validResolution("capture_res", g.CaptureRes); err != nil {
		return err
	}
	if err := validResolution("region_res", g.RegionRes); err != nil {
		return err
	}
	if g.RegionRes >= g.CaptureRes {
		return errs.Invalid("region_res", "must be coarser than capture resolution %d, got %d", g.CaptureRes, g.RegionRes)
	}
	return nil
}

// Cell：按捕获分辨率定位坐标所在格子
func (g Grid) Cell(c Coordinate) (CellID, error) { return CoordinateToCell(c, g.CaptureRes) }

// Region：格子所属分片
func (g Grid) Region(cell CellID) (RegionID, error) { return CellToRegion(cell, g.RegionRes) }

// CaptureCell：解析并校验格子编号必须处于捕获分辨率（批量更新入口使用）
func (g Grid) CaptureCell(id CellID) (h3.Cell, error) {
	c, err := ParseCell(id)
	if err != nil {
		return 0, err
	}
	if c.Resolution() != g.CaptureRes {
		return 0, errs.Invalid("cell", "%s has resolution %d, want %d", id, c.Resolution(), g.CaptureRes)
	}
	return c, nil
}

func validResolution(field string, res int) error {
	if res < 0 || res > MaxResolution {
		return errs.Invalid(field, "resolution %d outside [0, %d]", res, MaxResolution)
	}
	return nil
}

// ValidateCoordinate：拒绝 NaN/Inf 与越界经纬度
func ValidateCoordinate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return errs.Invalid("coordinate", "non-finite value (%v, %v)", c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return errs.Invalid("coordinate", "latitude %v out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return errs.Invalid("coordinate", "longitude %v out of range", c.Lng)
	}
	return nil
}

// Locate：坐标到 H3 格子（内部数值形式），供栅格化等热路径使用
func Locate(c Coordinate, res int) (h3.Cell, error) {
	if err := ValidateCoordinate(c); err != nil {
		return 0, err
	}
	if err := validResolution("resolution", res); err != nil {
		return 0, err
	}
	return h3.LatLngToCell(h3.NewLatLng(c.Lat, c.Lng), res), nil
}

// CoordinateToCell：确定性地把坐标映射到指定分辨率的格子
func CoordinateToCell(c Coordinate, res int) (CellID, error) {
	cell, err := Locate(c, res)
	if err != nil {
		return "", err
	}
	return CellID(cell.String()), nil
}

// ParseCell：编号串转 H3 格子；非法编号返回校验错误
func ParseCell(id CellID) (h3.Cell, error) {
	c := h3.Cell(h3.IndexFromString(string(id)))
	if id == "" || !c.IsValid() {
		return 0, errs.Invalid("cell", "invalid cell id %q", string(id))
	}
	return c, nil
}

// CellToRegion：祖先查找；同一格子与分辨率恒得同一分片
func CellToRegion(cell CellID, regionRes int) (RegionID, error) {
	c, err := ParseCell(cell)
	if err != nil {
		return "", err
	}
	r, err := ParentOf(c, regionRes)
	if err != nil {
		return "", err
	}
	return RegionID(r.String()), nil
}

// ParentOf：数值形式的祖先查找
func ParentOf(c h3.Cell, regionRes int) (h3.Cell, error) {
	if err := validResolution("region_res", regionRes); err != nil {
		return 0, err
	}
	if regionRes > c.Resolution() {
		return 0, errs.Invalid("region_res", "%d is finer than cell resolution %d", regionRes, c.Resolution())
	}
	if regionRes == c.Resolution() {
		return c, nil
	}
	return c.Parent(regionRes), nil
}

// Center：格子中心点
func Center(c h3.Cell) Coordinate {
	ll := h3.CellToLatLng(c)
	return Coordinate{Lat: ll.Lat, Lng: ll.Lng}
}

// IDs：格子集合转编号串（保持输入顺序）
func IDs(cells []h3.Cell) []CellID {
	out := make([]CellID, len(cells))
	for i, c := range cells {
		out[i] = CellID(c.String())
	}
	return out
}
