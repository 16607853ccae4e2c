package raster

import (
	"math"

	"hex-territory/internal/spatial"

	"github.com/uber/h3-go/v4"
	"seehuhn.de/go/geom/vec"
)

// tracer：把折线段插值成无缝隙的格子序列，按首次出现顺序去重
type tracer struct {
	res  int
	step float64 // 米，小于捕获分辨率边长
	seen spatial.CellSet
	path []h3.Cell
}

func newTracer(res int) *tracer {
	return &tracer{
		res:  res,
		step: spatial.EdgeLengthMeters(res) / 4,
		seen: make(spatial.CellSet),
	}
}

func (t *tracer) visit(p vec.Vec2) {
	c := h3.LatLngToCell(h3.NewLatLng(p.Y, wrapLng(p.X)), t.res)
	if t.seen.Has(c) {
		return
	}
	t.seen.Add(c)
	t.path = append(t.path, c)
}

// segment：访问 a 到 b 之间的插值点（不含 a，含 b）
func (t *tracer) segment(a, b vec.Vec2) {
	d := spatial.Haversine(toCoord(a), toCoord(b))
	n := int(math.Ceil(d / t.step))
	if n < 1 {
		n = 1
	}
	delta := b.Sub(a)
	for k := 1; k <= n; k++ {
		t.visit(a.Add(delta.Mul(float64(k) / float64(n))))
	}
}

// unwrap：把经度展开成连续序列，使相邻点经度差不超过 180°，跨 180° 经线的路径得以正确插值
func unwrap(coords []spatial.Coordinate) []vec.Vec2 {
	out := make([]vec.Vec2, len(coords))
	for i, c := range coords {
		x := c.Lng
		if i > 0 {
			prev := out[i-1].X
			for x-prev > 180 {
				x -= 360
			}
			for prev-x > 180 {
				x += 360
			}
		}
		out[i] = vec.Vec2{X: x, Y: c.Lat}
	}
	return out
}

func wrapLng(x float64) float64 {
	for x > 180 {
		x -= 360
	}
	for x < -180 {
		x += 360
	}
	return x
}

func toCoord(p vec.Vec2) spatial.Coordinate {
	return spatial.Coordinate{Lat: p.Y, Lng: wrapLng(p.X)}
}
