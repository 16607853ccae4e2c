// 包 raster：把原始坐标路径转换为格子序列，判定闭环并填充围合区域
// 约束：纯计算，无共享可变状态；相同输入与分辨率恒得相同结果（重放幂等依赖于此）
package raster

import (
	"math"

	"hex-territory/internal/errs"
	"hex-territory/internal/spatial"

	"github.com/uber/h3-go/v4"
	"seehuhn.de/go/geom/vec"
)

// PathType：路径分类
type PathType string

const (
	SingleHex  PathType = "single_hex"
	ClosedLoop PathType = "closed_loop"
	OpenPath   PathType = "open_path"
)

// Options：调用方可调的闭环参数
type Options struct {
	AutoClose   bool `json:"autoClose"`
	MinLoopSize int  `json:"minLoopSize"`
}

// Rasterizer：栅格化参数；零值字段使用默认值
type Rasterizer struct {
	Res                  int
	CloseToleranceMeters float64 // 0 表示一个边长
	MaxFillCells         int     // 0 表示 100000
	MaxPathPoints        int     // 0 表示 10000
}

const (
	defaultMaxFillCells  = 100000
	defaultMaxPathPoints = 10000
)

// Trace：栅格化结果；Boundary/Interior/Captured 均已排序
type Trace struct {
	PathType   PathType
	HexPath    []h3.Cell
	LoopClosed bool
	Boundary   []h3.Cell
	Interior   []h3.Cell
	Captured   []h3.Cell
}

func (r Rasterizer) tolerance() float64 {
	if r.CloseToleranceMeters > 0 {
		return r.CloseToleranceMeters
	}
	return spatial.EdgeLengthMeters(r.Res)
}

// Rasterize：路径到格子序列、分类与填充
func (r Rasterizer) Rasterize(coords []spatial.Coordinate, opts Options) (*Trace, error) {
	maxPoints := r.MaxPathPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPathPoints
	}
	if len(coords) == 0 {
		return nil, errs.Invalid("coordinates", "at least one coordinate is required")
	}
	if len(coords) > maxPoints {
		return nil, errs.Invalid("coordinates", "%d points exceed limit %d", len(coords), maxPoints)
	}
	for _, c := range coords {
		if err := spatial.ValidateCoordinate(c); err != nil {
			return nil, err
		}
	}
	if opts.MinLoopSize < 0 {
		return nil, errs.Invalid("minLoopSize", "must not be negative")
	}

	pts := unwrap(coords)
	tr := newTracer(r.Res)
	tr.visit(pts[0])
	for i := 1; i < len(pts); i++ {
		tr.segment(pts[i-1], pts[i])
	}
	hexPath := tr.path
	if len(hexPath) == 1 {
		return &Trace{
			PathType: SingleHex,
			HexPath:  hexPath,
			Boundary: hexPath,
			Captured: hexPath,
		}, nil
	}

	ring, closed := r.closeLoop(pts, hexPath, tr, opts.AutoClose)
	if closed {
		boundary := tr.seen
		interior, err := r.fill(ring, boundary)
		if err != nil {
			return nil, err
		}
		if len(boundary)+len(interior) >= opts.MinLoopSize {
			return classifyLoop(hexPath, boundary, interior), nil
		}
	}
	open := spatial.NewCellSet(hexPath...).Sorted()
	return &Trace{
		PathType: OpenPath,
		HexPath:  hexPath,
		Boundary: open,
		Captured: open,
	}, nil
}

// closeLoop：端点重合（容差内或同一格子）即为闭环；否则按 autoClose 追加闭合线段
// 约束：闭合后的多边形必须有非零面积且边界至少覆盖 3 个不同格子
func (r Rasterizer) closeLoop(pts []vec.Vec2, hexPath []h3.Cell, tr *tracer, autoClose bool) ([]vec.Vec2, bool) {
	first, last := pts[0], pts[len(pts)-1]
	ring := pts
	endpointsMeet := spatial.Haversine(toCoord(first), toCoord(last)) <= r.tolerance() ||
		hexPath[0] == h3.LatLngToCell(h3.NewLatLng(last.Y, wrapLng(last.X)), r.Res)
	if endpointsMeet {
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
	} else {
		if !autoClose {
			return nil, false
		}
		// 闭合线段写入边界集合，但不计入 hexPath
		saved := tr.path
		tr.segment(last, first)
		tr.path = saved
	}
	if len(ring) < 3 || math.Abs(ringArea(ring)) < 1e-14 || len(tr.seen) < 3 {
		return nil, false
	}
	return ring, true
}

// fill：有界多源泛洪；种子为边界格子的邻居中中心落在多边形内者
// 约束：只经过非边界且中心在多边形内的格子扩展；超过 MaxFillCells 即判定围合区域过大
func (r Rasterizer) fill(ring []vec.Vec2, boundary spatial.CellSet) (spatial.CellSet, error) {
	limit := r.MaxFillCells
	if limit <= 0 {
		limit = defaultMaxFillCells
	}
	bbox := ringBBox(ring)
	inside := func(c h3.Cell) bool {
		center := spatial.Center(c)
		for _, shift := range []float64{0, 360, -360} {
			p := vec.Vec2{X: center.Lng + shift, Y: center.Lat}
			if inBBox(p, bbox) && pointInRing(p, ring) {
				return true
			}
		}
		return false
	}

	interior := make(spatial.CellSet)
	var queue []h3.Cell
	for _, b := range boundary.Sorted() {
		for _, n := range spatial.Neighbors(b) {
			if boundary.Has(n) || interior.Has(n) || !inside(n) {
				continue
			}
			interior.Add(n)
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		if len(interior) > limit {
			return nil, errs.Invalid("coordinates", "enclosed area exceeds %d cells", limit)
		}
		c := queue[0]
		queue = queue[1:]
		for _, n := range spatial.Neighbors(c) {
			if boundary.Has(n) || interior.Has(n) || !inside(n) {
				continue
			}
			interior.Add(n)
			queue = append(queue, n)
		}
	}
	if len(interior) > limit {
		return nil, errs.Invalid("coordinates", "enclosed area exceeds %d cells", limit)
	}
	return interior, nil
}

// classifyLoop：填充格子若与区域外相邻（边界描迹存在缝隙），归入边界
func classifyLoop(hexPath []h3.Cell, boundary, interior spatial.CellSet) *Trace {
	region := make(spatial.CellSet, len(boundary)+len(interior))
	for c := range boundary {
		region.Add(c)
	}
	for c := range interior {
		region.Add(c)
	}
	b := make(spatial.CellSet, len(boundary))
	for c := range boundary {
		b.Add(c)
	}
	in := make(spatial.CellSet, len(interior))
	for c := range interior {
		if spatial.IsEdgeCell(c, region) {
			b.Add(c)
			continue
		}
		in.Add(c)
	}
	return &Trace{
		PathType:   ClosedLoop,
		HexPath:    hexPath,
		LoopClosed: true,
		Boundary:   b.Sorted(),
		Interior:   in.Sorted(),
		Captured:   region.Sorted(),
	}
}
