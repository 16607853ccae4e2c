package spatial

import (
	"math"
	"strings"
	"testing"

	"hex-territory/internal/errs"
)

var sf = Coordinate{Lat: 37.775938728915946, Lng: -122.41795063018799}

func TestCoordinateToCellKnownIndex(t *testing.T) {
	got, err := CoordinateToCell(sf, 9)
	if err != nil {
		t.Fatalf("CoordinateToCell: %v", err)
	}
	if got != "8928308280fffff" {
		t.Errorf("CoordinateToCell(sf, 9) = %s, want 8928308280fffff", got)
	}
}

func TestCoordinateToCellRejectsMalformed(t *testing.T) {
	tests := []Coordinate{
		{Lat: math.NaN(), Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: -180.5},
	}
	for _, c := range tests {
		if _, err := CoordinateToCell(c, 10); !errs.IsValidation(err) {
			t.Errorf("CoordinateToCell(%v) error = %v, want validation error", c, err)
		}
	}
	if _, err := CoordinateToCell(sf, 16); !errs.IsValidation(err) {
		t.Errorf("resolution 16 error = %v, want validation error", err)
	}
}

func TestCellToRegionStable(t *testing.T) {
	g, err := NewGrid(10, 6)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	cell, err := g.Cell(sf)
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	first, err := g.Region(cell)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := g.Region(cell)
		if again != first {
			t.Fatalf("Region call %d = %s, want %s", i, again, first)
		}
	}
	r, _ := ParseCell(CellID(first))
	if r.Resolution() != 6 {
		t.Errorf("region resolution = %d, want 6", r.Resolution())
	}
	direct, _ := CoordinateToCell(sf, 9)
	viaCoarse, _ := CellToRegion(direct, 6)
	if viaCoarse != first {
		t.Errorf("region via res 9 = %s, via res 10 = %s; ancestors must agree", viaCoarse, first)
	}
}

func TestCellToRegionRejectsFinerResolution(t *testing.T) {
	cell, _ := CoordinateToCell(sf, 6)
	if _, err := CellToRegion(cell, 8); !errs.IsValidation(err) {
		t.Errorf("CellToRegion(res6 cell, 8) error = %v, want validation error", err)
	}
	if _, err := CellToRegion("not-a-cell", 6); !errs.IsValidation(err) {
		t.Errorf("CellToRegion(garbage) error = %v, want validation error", err)
	}
}

func TestNewGridLadder(t *testing.T) {
	if _, err := NewGrid(6, 6); err == nil {
		t.Error("NewGrid(6, 6) succeeded, want error for equal resolutions")
	}
	if _, err := NewGrid(5, 8); err == nil {
		t.Error("NewGrid(5, 8) succeeded, want error for inverted ladder")
	}
}

func TestIsEdgeCell(t *testing.T) {
	center, _ := Locate(sf, 10)
	frontier := NewCellSet(center)
	for _, n := range Neighbors(center) {
		frontier.Add(n)
	}
	if IsEdgeCell(center, frontier) {
		t.Error("center surrounded by its ring reported as edge")
	}
	ring := Neighbors(center)
	if len(ring) != 6 {
		t.Fatalf("Neighbors returned %d cells, want 6", len(ring))
	}
	if !IsEdgeCell(ring[0], frontier) {
		t.Error("ring cell reported as interior, want edge")
	}
}

func TestCellsInBoundingBoxCoversCorners(t *testing.T) {
	b, err := NewBounds(-122.43, 37.77, -122.41, 37.78)
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	cells, err := CellsInBoundingBox(b, 9, 0)
	if err != nil {
		t.Fatalf("CellsInBoundingBox: %v", err)
	}
	set := make(map[CellID]bool, len(cells))
	for i, c := range cells {
		set[c] = true
		if i > 0 && cells[i-1] >= c {
			t.Fatalf("result not strictly sorted at %d: %s >= %s", i, cells[i-1], c)
		}
	}
	for _, corner := range []Coordinate{
		{Lat: 37.77, Lng: -122.43}, {Lat: 37.78, Lng: -122.41}, {Lat: 37.775, Lng: -122.42},
	} {
		id, _ := CoordinateToCell(corner, 9)
		if !set[id] {
			t.Errorf("cell %s containing %v missing from bounding box cells", id, corner)
		}
	}
}

func TestCellsInBoundingBoxTinyBox(t *testing.T) {
	b, _ := NewBounds(sf.Lng, sf.Lat, sf.Lng+1e-6, sf.Lat+1e-6)
	cells, err := CellsInBoundingBox(b, 9, 0)
	if err != nil {
		t.Fatalf("CellsInBoundingBox: %v", err)
	}
	if len(cells) == 0 || len(cells) > 2 {
		t.Fatalf("tiny box returned %d cells, want 1 or 2", len(cells))
	}
}

func TestCellsInBoundingBoxLimit(t *testing.T) {
	b, _ := NewBounds(-10, -10, 10, 10)
	if _, err := CellsInBoundingBox(b, 9, 1000); !errs.IsValidation(err) {
		t.Errorf("oversized viewport error = %v, want validation error", err)
	}
}

func TestParseBounds(t *testing.T) {
	if _, err := ParseBounds("1", "2", "3", "4"); err != nil {
		t.Errorf("ParseBounds(valid) = %v", err)
	}
	for _, in := range [][4]string{
		{"", "2", "3", "4"},
		{"x", "2", "3", "4"},
		{"NaN", "2", "3", "4"},
		{"1", "50", "3", "40"},
	} {
		if _, err := ParseBounds(in[0], in[1], in[2], in[3]); !errs.IsValidation(err) {
			t.Errorf("ParseBounds(%s) error = %v, want validation error", strings.Join(in[:], ","), err)
		}
	}
	if _, err := ParseBBox("1,2,3"); !errs.IsValidation(err) {
		t.Errorf("ParseBBox with 3 values error = %v, want validation error", err)
	}
}

func TestCoveringRegionsAntimeridian(t *testing.T) {
	g, _ := NewGrid(10, 4)
	b, err := NewBounds(179.9, -0.1, -179.9, 0.1)
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	regions, err := g.CoveringRegions(b, 4, 0)
	if err != nil {
		t.Fatalf("CoveringRegions: %v", err)
	}
	west, _ := CellToRegion(mustCell(t, Coordinate{Lat: 0, Lng: 179.95}, 10), 4)
	east, _ := CellToRegion(mustCell(t, Coordinate{Lat: 0, Lng: -179.95}, 10), 4)
	found := map[RegionID]bool{}
	for _, r := range regions {
		found[r] = true
	}
	if !found[west] || !found[east] {
		t.Errorf("regions %v missing one side of the antimeridian (%s, %s)", regions, west, east)
	}
}

func TestCoveringRegionsIncludesCapturedCellRegion(t *testing.T) {
	g, _ := NewGrid(10, 6)
	b, _ := NewBounds(-122.45, 37.76, -122.40, 37.79)
	regions, err := g.CoveringRegions(b, 6, 0)
	if err != nil {
		t.Fatalf("CoveringRegions: %v", err)
	}
	cell := mustCell(t, sf, 10)
	want, _ := g.Region(cell)
	for _, r := range regions {
		if r == want {
			return
		}
	}
	t.Errorf("covering regions %v do not include %s", regions, want)
}

func TestHaversine(t *testing.T) {
	d := Haversine(Coordinate{Lat: 0, Lng: 0}, Coordinate{Lat: 0, Lng: 1})
	if math.Abs(d-111195) > 200 {
		t.Errorf("Haversine one degree at equator = %.0f m, want about 111195", d)
	}
}

func mustCell(t *testing.T, c Coordinate, res int) CellID {
	t.Helper()
	id, err := CoordinateToCell(c, res)
	if err != nil {
		t.Fatalf("CoordinateToCell(%v): %v", c, err)
	}
	return id
}
