package raster

import (
	"reflect"
	"slices"
	"testing"

	"hex-territory/internal/errs"
	"hex-territory/internal/spatial"

	"github.com/uber/h3-go/v4"
)

const testRes = 10

var origin = spatial.Coordinate{Lat: 37.7749, Lng: -122.4194}

func square(side float64, closed bool) []spatial.Coordinate {
	pts := []spatial.Coordinate{
		origin,
		{Lat: origin.Lat, Lng: origin.Lng + side},
		{Lat: origin.Lat + side, Lng: origin.Lng + side},
		{Lat: origin.Lat + side, Lng: origin.Lng},
	}
	if closed {
		pts = append(pts, origin)
	}
	return pts
}

func line(n int, step float64) []spatial.Coordinate {
	pts := make([]spatial.Coordinate, n)
	for i := range pts {
		pts[i] = spatial.Coordinate{Lat: origin.Lat, Lng: origin.Lng + float64(i)*step}
	}
	return pts
}

func TestRasterizeSinglePoint(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize([]spatial.Coordinate{origin}, Options{})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != SingleHex {
		t.Errorf("PathType = %s, want %s", tr.PathType, SingleHex)
	}
	if len(tr.Captured) != 1 || len(tr.HexPath) != 1 {
		t.Errorf("captured %d, hexPath %d; want 1 and 1", len(tr.Captured), len(tr.HexPath))
	}
	if tr.LoopClosed || len(tr.Interior) != 0 {
		t.Errorf("single hex reported loopClosed=%v interior=%d", tr.LoopClosed, len(tr.Interior))
	}
}

func TestRasterizePointsInOneCell(t *testing.T) {
	r := Rasterizer{Res: testRes}
	pts := []spatial.Coordinate{origin, {Lat: origin.Lat + 1e-6, Lng: origin.Lng}, origin}
	tr, err := r.Rasterize(pts, Options{AutoClose: true})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != SingleHex || len(tr.Captured) != 1 {
		t.Errorf("PathType = %s captured = %d, want single_hex with 1 cell", tr.PathType, len(tr.Captured))
	}
}

func TestRasterizeEmpty(t *testing.T) {
	r := Rasterizer{Res: testRes}
	if _, err := r.Rasterize(nil, Options{}); !errs.IsValidation(err) {
		t.Errorf("Rasterize(nil) error = %v, want validation error", err)
	}
}

func TestRasterizeRejectsMalformed(t *testing.T) {
	r := Rasterizer{Res: testRes, MaxPathPoints: 3}
	if _, err := r.Rasterize([]spatial.Coordinate{origin, {Lat: 95, Lng: 0}}, Options{}); !errs.IsValidation(err) {
		t.Errorf("out-of-range latitude error = %v, want validation error", err)
	}
	if _, err := r.Rasterize(line(4, 0.001), Options{}); !errs.IsValidation(err) {
		t.Errorf("too many points error = %v, want validation error", err)
	}
	if _, err := r.Rasterize(line(2, 0.001), Options{MinLoopSize: -1}); !errs.IsValidation(err) {
		t.Errorf("negative minLoopSize error = %v, want validation error", err)
	}
}

func TestRasterizeOpenPath(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize(line(5, 0.002), Options{AutoClose: false, MinLoopSize: 3})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != OpenPath {
		t.Fatalf("PathType = %s, want %s", tr.PathType, OpenPath)
	}
	if tr.LoopClosed || len(tr.Interior) != 0 {
		t.Errorf("open path loopClosed=%v interior=%d, want false and 0", tr.LoopClosed, len(tr.Interior))
	}
	if !reflect.DeepEqual(tr.Boundary, tr.Captured) {
		t.Errorf("boundary (%d) differs from captured (%d)", len(tr.Boundary), len(tr.Captured))
	}
	if len(tr.Captured) != len(tr.HexPath) {
		t.Errorf("captured %d cells, hexPath %d; want equal", len(tr.Captured), len(tr.HexPath))
	}
}

func TestRasterizeHexPathIsGapFree(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize(line(5, 0.004), Options{})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	for i := 1; i < len(tr.HexPath); i++ {
		prev, cur := tr.HexPath[i-1], tr.HexPath[i]
		if !slices.Contains(spatial.Neighbors(prev), cur) {
			t.Fatalf("hexPath[%d]=%s is not adjacent to hexPath[%d]=%s", i, cur, i-1, prev)
		}
	}
	seen := map[h3.Cell]bool{}
	for _, c := range tr.HexPath {
		if seen[c] {
			t.Fatalf("hexPath contains duplicate %s", c)
		}
		seen[c] = true
	}
}

func TestRasterizeClosedSquare(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize(square(0.005, true), Options{MinLoopSize: 3})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != ClosedLoop || !tr.LoopClosed {
		t.Fatalf("PathType = %s loopClosed = %v, want closed_loop and true", tr.PathType, tr.LoopClosed)
	}
	if len(tr.Boundary) < 4 {
		t.Errorf("boundary = %d cells, want at least 4", len(tr.Boundary))
	}
	if len(tr.Interior) == 0 {
		t.Errorf("interior empty for a 0.005 degree square at res %d", testRes)
	}
	if len(tr.Captured) != len(tr.Boundary)+len(tr.Interior) {
		t.Errorf("captured %d != boundary %d + interior %d", len(tr.Captured), len(tr.Boundary), len(tr.Interior))
	}
	center, _ := spatial.Locate(spatial.Coordinate{Lat: origin.Lat + 0.0025, Lng: origin.Lng + 0.0025}, testRes)
	if !slices.Contains(tr.Interior, center) {
		t.Errorf("center cell %s not in interior", center)
	}
	for _, c := range tr.Interior {
		p := spatial.Center(c)
		if p.Lat < origin.Lat || p.Lat > origin.Lat+0.005 || p.Lng < origin.Lng || p.Lng > origin.Lng+0.005 {
			t.Errorf("interior cell %s center %v outside the square", c, p)
		}
	}
}

func TestRasterizeAutoClose(t *testing.T) {
	r := Rasterizer{Res: testRes}
	open, err := r.Rasterize(square(0.005, false), Options{AutoClose: false, MinLoopSize: 3})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if open.PathType != OpenPath {
		t.Errorf("unclosed square without autoClose = %s, want open_path", open.PathType)
	}
	closed, err := r.Rasterize(square(0.005, false), Options{AutoClose: true, MinLoopSize: 3})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if closed.PathType != ClosedLoop {
		t.Fatalf("unclosed square with autoClose = %s, want closed_loop", closed.PathType)
	}
	if len(closed.Boundary) <= len(closed.HexPath) {
		t.Errorf("boundary %d should include closing segment beyond hexPath %d", len(closed.Boundary), len(closed.HexPath))
	}
}

func TestRasterizeAutoCloseDegenerateLine(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize(line(5, 0.002), Options{AutoClose: true, MinLoopSize: 3})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != OpenPath {
		t.Errorf("auto-closed straight line = %s, want open_path", tr.PathType)
	}
}

func TestRasterizeMinLoopSizeDowngrade(t *testing.T) {
	r := Rasterizer{Res: testRes}
	tr, err := r.Rasterize(square(0.005, true), Options{MinLoopSize: 1 << 20})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if tr.PathType != OpenPath || tr.LoopClosed {
		t.Errorf("PathType = %s loopClosed = %v, want open_path and false", tr.PathType, tr.LoopClosed)
	}
	if len(tr.Interior) != 0 || len(tr.Captured) != len(tr.HexPath) {
		t.Errorf("downgraded loop captured %d (hexPath %d) interior %d", len(tr.Captured), len(tr.HexPath), len(tr.Interior))
	}
}

func TestRasterizeFillLimit(t *testing.T) {
	r := Rasterizer{Res: testRes, MaxFillCells: 5}
	if _, err := r.Rasterize(square(0.01, true), Options{}); !errs.IsValidation(err) {
		t.Errorf("oversized fill error = %v, want validation error", err)
	}
}

func TestRasterizeDeterministic(t *testing.T) {
	r := Rasterizer{Res: testRes}
	inputs := [][]spatial.Coordinate{
		{origin},
		line(5, 0.002),
		square(0.005, true),
		square(0.004, false),
	}
	for i, in := range inputs {
		a, err := r.Rasterize(in, Options{AutoClose: true, MinLoopSize: 3})
		if err != nil {
			t.Fatalf("input %d: %v", i, err)
		}
		b, _ := r.Rasterize(in, Options{AutoClose: true, MinLoopSize: 3})
		if !reflect.DeepEqual(a, b) {
			t.Errorf("input %d: two runs differ", i)
		}
	}
}

func TestRasterizeAcrossAntimeridian(t *testing.T) {
	r := Rasterizer{Res: 7}
	tr, err := r.Rasterize([]spatial.Coordinate{{Lat: 0, Lng: 179.999}, {Lat: 0, Lng: -179.999}}, Options{})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(tr.HexPath) > 4 {
		t.Errorf("short antimeridian hop produced %d cells, want a handful", len(tr.HexPath))
	}
}
