package raster

import "seehuhn.de/go/geom/vec"

// 射线法（Even-Odd）判定点是否在环内；X 为经度，Y 为纬度
// 约束：环首尾无需重复；顶点少于 3 个视为空环
func pointInRing(pt vec.Vec2, ring []vec.Vec2) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		intersect := ((yi > pt.Y) != (yj > pt.Y)) && (pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// ringArea：鞋带公式的有向面积（平方度），仅用于退化判定
func ringArea(ring []vec.Vec2) float64 {
	var a float64
	for i := range ring {
		p, q := ring[i], ring[(i+1)%len(ring)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// ringBBox：minLon, minLat, maxLon, maxLat
func ringBBox(ring []vec.Vec2) [4]float64 {
	b := [4]float64{ring[0].X, ring[0].Y, ring[0].X, ring[0].Y}
	for _, p := range ring[1:] {
		if p.X < b[0] {
			b[0] = p.X
		}
		if p.Y < b[1] {
			b[1] = p.Y
		}
		if p.X > b[2] {
			b[2] = p.X
		}
		if p.Y > b[3] {
			b[3] = p.Y
		}
	}
	return b
}

func inBBox(pt vec.Vec2, b [4]float64) bool {
	return pt.X >= b[0] && pt.X <= b[2] && pt.Y >= b[1] && pt.Y <= b[3]
}
