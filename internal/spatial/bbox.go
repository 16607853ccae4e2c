package spatial

import (
	"math"
	"strconv"
	"strings"

	"hex-territory/internal/errs"

	"github.com/uber/h3-go/v4"
	"seehuhn.de/go/geom/rect"
)

// Bounds：经纬度轴对齐包围盒；LLx=west, LLy=south, URx=east, URy=north
// 约束：west > east 表示跨越 180° 经线
type Bounds struct {
	rect.Rect
}

func (b Bounds) West() float64  { return b.LLx }
func (b Bounds) South() float64 { return b.LLy }
func (b Bounds) East() float64  { return b.URx }
func (b Bounds) North() float64 { return b.URy }

// NewBounds：校验四个边界值必须有限且在合法范围内
func NewBounds(west, south, east, north float64) (Bounds, error) {
	for _, v := range []float64{west, south, east, north} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bounds{}, errs.Invalid("bounds", "non-finite value %v", v)
		}
	}
	if south < -90 || north > 90 || south > north {
		return Bounds{}, errs.Invalid("bounds", "latitude span [%v, %v] invalid", south, north)
	}
	if west < -180 || west > 180 || east < -180 || east > 180 {
		return Bounds{}, errs.Invalid("bounds", "longitude span [%v, %v] invalid", west, east)
	}
	return Bounds{rect.Rect{LLx: west, LLy: south, URx: east, URy: north}}, nil
}

// ParseBounds：从查询参数解析；任一值缺失或非数字均视为校验失败
func ParseBounds(west, south, east, north string) (Bounds, error) {
	raw := []string{west, south, east, north}
	vals := make([]float64, 4)
	for i, s := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Bounds{}, errs.Invalid("bounds", "expected 4 finite numbers, got %q", strings.Join(raw, ","))
		}
		vals[i] = v
	}
	return NewBounds(vals[0], vals[1], vals[2], vals[3])
}

// ParseBBox：逗号分隔的 "west,south,east,north" 形式
func ParseBBox(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, errs.Invalid("bounds", "expected 4 finite numbers, got %d", len(parts))
	}
	return ParseBounds(parts[0], parts[1], parts[2], parts[3])
}

// parts：跨 180° 经线时拆为两段，再按 90° 经度宽度切块，避免 H3 按短弧解释多边形边
func (b Bounds) parts() []rect.Rect {
	var spans [][2]float64
	if b.West() > b.East() {
		spans = append(spans, [2]float64{b.West(), 180}, [2]float64{-180, b.East()})
	} else {
		spans = append(spans, [2]float64{b.West(), b.East()})
	}
	var out []rect.Rect
	for _, sp := range spans {
		w := sp[0]
		for {
			e := math.Min(sp[1], w+90)
			out = append(out, rect.Rect{LLx: w, LLy: b.South(), URx: e, URy: b.North()})
			if e >= sp[1] {
				break
			}
			w = e
		}
	}
	return out
}

// estimateCells：按面积粗估格子数，超限请求在枚举前即拒绝
func (b Bounds) estimateCells(res int) float64 {
	var total float64
	for _, r := range b.parts() {
		midLat := (r.LLy + r.URy) / 2 * math.Pi / 180
		h := (r.URy - r.LLy) * 111.32
		w := (r.URx - r.LLx) * 111.32 * math.Cos(midLat)
		total += h * w
	}
	return total / HexAreaKm2(res)
}

// CellsInBoundingBox：枚举与包围盒相交的全部格子（已排序去重）
// 约束：多边形填充只覆盖中心落在盒内的格子，因此沿四边按小于边长的步长补采样；
// limit > 0 时结果超过 limit 即返回校验错误
func CellsInBoundingBox(b Bounds, res int, limit int) ([]CellID, error) {
	cells, err := cellsInBounds(b, res, limit)
	if err != nil {
		return nil, err
	}
	return IDs(cells.Sorted()), nil
}

func cellsInBounds(b Bounds, res int, limit int) (CellSet, error) {
	if err := validResolution("resolution", res); err != nil {
		return nil, err
	}
	if limit > 0 && b.estimateCells(res) > float64(limit)*1.5 {
		return nil, errs.Invalid("bounds", "viewport too large for resolution %d", res)
	}
	set := make(CellSet)
	for _, r := range b.parts() {
		poly := h3.GeoPolygon{GeoLoop: h3.GeoLoop{
			h3.NewLatLng(r.LLy, r.LLx),
			h3.NewLatLng(r.LLy, r.URx),
			h3.NewLatLng(r.URy, r.URx),
			h3.NewLatLng(r.URy, r.LLx),
		}}
		for _, c := range h3.PolygonToCells(poly, res) {
			set.Add(c)
		}
		samplePerimeter(r, res, set)
		if limit > 0 && len(set) > limit {
			return nil, errs.Invalid("bounds", "viewport too large for resolution %d", res)
		}
	}
	return set, nil
}

func samplePerimeter(r rect.Rect, res int, set CellSet) {
	step := EdgeLengthMeters(res) / 2
	corners := []Coordinate{
		{Lat: r.LLy, Lng: r.LLx},
		{Lat: r.LLy, Lng: r.URx},
		{Lat: r.URy, Lng: r.URx},
		{Lat: r.URy, Lng: r.LLx},
	}
	for i := range corners {
		a, b := corners[i], corners[(i+1)%len(corners)]
		n := int(math.Ceil(Haversine(a, b)/step)) + 1
		for k := 0; k <= n; k++ {
			t := float64(k) / float64(n)
			p := Coordinate{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
			set.Add(h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res))
		}
	}
}

// CoveringRegions：视口覆盖的全部分片编号（已排序）
// 约束：res 只做范围校验，枚举固定在区域分辨率上进行，客户端缩放级别不影响覆盖集合；
// 额外纳入一圈相邻格子，吸收 H3 子格子略超出父格子轮廓的部分
func (g Grid) CoveringRegions(b Bounds, res int, limit int) ([]RegionID, error) {
	if err := validResolution("resolution", res); err != nil {
		return nil, err
	}
	cells, err := cellsInBounds(b, g.RegionRes, limit)
	if err != nil {
		return nil, err
	}
	regions := make(CellSet, len(cells)*7)
	for c := range cells {
		for _, n := range h3.GridDisk(c, 1) {
			if n != 0 {
				regions.Add(n)
			}
		}
	}
	if limit > 0 && len(regions) > limit {
		return nil, errs.Invalid("bounds", "viewport covers %d regions, limit %d", len(regions), limit)
	}
	sorted := regions.Sorted()
	out := make([]RegionID, len(sorted))
	for i, c := range sorted {
		out[i] = RegionID(c.String())
	}
	return out, nil
}
