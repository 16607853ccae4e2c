package spatial

import "math"

const earthRadiusKm = 6371.0

// 各分辨率六边形平均边长（千米），来自 H3 官方统计表
var edgeLengthKm = [MaxResolution + 1]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

// EdgeLengthMeters：分辨率对应的平均边长（米）；越界分辨率按边界值截断
func EdgeLengthMeters(res int) float64 {
	if res < 0 {
		res = 0
	}
	if res > MaxResolution {
		res = MaxResolution
	}
	return edgeLengthKm[res] * 1000
}

// HexAreaKm2：平均六边形面积，用于视口规模预估
func HexAreaKm2(res int) float64 {
	e := EdgeLengthMeters(res) / 1000
	return 3 * math.Sqrt(3) / 2 * e * e
}

// Haversine：球面距离（米）
func Haversine(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusKm * c * 1000
}
