package territory

import (
	"context"
	"slices"
	"testing"

	"hex-territory/internal/errs"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store/mem"
)

func TestScenarioEmptyViewport(t *testing.T) {
	e := newEngine(t, mem.New())
	b, _ := spatial.NewBounds(-122.45, 37.76, -122.40, 37.79)
	res, err := e.GetViewportTerritories(context.Background(), b, 10)
	if err != nil {
		t.Fatalf("GetViewportTerritories: %v", err)
	}
	if len(res.Regions) != 0 || res.TotalHexes != 0 {
		t.Errorf("empty area: regions=%d totalHexes=%d", len(res.Regions), res.TotalHexes)
	}
	if res.Regions == nil {
		t.Error("regions should be an empty map, not nil")
	}
	if len(res.RegionIDs) == 0 {
		t.Error("covering region ids should still be reported")
	}
}

func TestViewportReturnsCapturedShards(t *testing.T) {
	e := newEngine(t, mem.New())
	ctx := context.Background()
	captured, err := e.ProcessPath(ctx, PathSubmission{User: "alice", Color: "#f00", Coordinates: square(sf, 0.004), Options: PathOptions{MinLoopSize: 3}})
	if err != nil {
		t.Fatal(err)
	}
	far, err := e.ProcessClick(ctx, ClickSubmission{User: "bob", Color: "#00f", Coordinate: spatial.Coordinate{Lat: 48.8566, Lng: 2.3522}})
	if err != nil {
		t.Fatal(err)
	}

	b, _ := spatial.NewBounds(sf.Lng-0.01, sf.Lat-0.01, sf.Lng+0.01, sf.Lat+0.01)
	res, err := e.GetViewportTerritories(ctx, b, 12)
	if err != nil {
		t.Fatalf("GetViewportTerritories: %v", err)
	}
	if res.TotalHexes != captured.HexesCaptured {
		t.Errorf("totalHexes = %d, want %d", res.TotalHexes, captured.HexesCaptured)
	}
	for _, r := range captured.RegionsAffected {
		if res.Regions[r] == nil || !slices.Contains(res.RegionIDs, r) {
			t.Errorf("captured region %s missing from viewport", r)
		}
	}
	if res.Regions[far.RegionsAffected[0]] != nil {
		t.Error("distant shard returned for San Francisco viewport")
	}
	if !slices.IsSorted(res.RegionIDs) {
		t.Error("regionIds not sorted")
	}
}

func TestViewportValidation(t *testing.T) {
	e := newEngine(t, mem.New(), func(o *Options) { o.MaxViewportRegions = 4 })
	ctx := context.Background()
	b, _ := spatial.NewBounds(-122.45, 37.76, -122.40, 37.79)
	if _, err := e.GetViewportTerritories(ctx, b, 16); !errs.IsValidation(err) {
		t.Errorf("resolution 16: %v", err)
	}
	wide, _ := spatial.NewBounds(-125, 30, -110, 45)
	if _, err := e.GetViewportTerritories(ctx, wide, 6); !errs.IsValidation(err) {
		t.Errorf("oversized viewport: %v", err)
	}
	if _, err := spatial.ParseBounds("a", "1", "2", "3"); !errs.IsValidation(err) {
		t.Errorf("non-numeric bounds: %v", err)
	}
}

func TestGetRegionAndProfile(t *testing.T) {
	e := newEngine(t, mem.New())
	ctx := context.Background()
	empty, _ := spatial.CellToRegion(spatial.CellID(cellAt(t, sf).String()), 6)
	if _, err := e.GetRegion(ctx, empty); !errs.IsNotFound(err) {
		t.Errorf("GetRegion before capture: %v, want not found", err)
	}
	if _, err := e.GetRegion(ctx, "zzz"); !errs.IsValidation(err) {
		t.Errorf("GetRegion(zzz): %v, want validation", err)
	}
	if _, err := e.GetRegion(ctx, spatial.RegionID(cellAt(t, sf).String())); !errs.IsValidation(err) {
		t.Errorf("GetRegion with capture-resolution id: %v, want validation", err)
	}
	if _, err := e.GetProfile(ctx, "alice"); !errs.IsNotFound(err) {
		t.Errorf("GetProfile before capture: %v", err)
	}
	if _, err := e.ProcessClick(ctx, ClickSubmission{User: "alice", Color: "#f00", Coordinate: sf}); err != nil {
		t.Fatal(err)
	}
	sh, err := e.GetRegion(ctx, empty)
	if err != nil || sh.Metadata.HexCount != 1 {
		t.Errorf("GetRegion after capture = %+v, %v", sh, err)
	}
	if p, err := e.GetProfile(ctx, "alice"); err != nil || p.Stats.TotalCaptures != 1 {
		t.Errorf("GetProfile = %+v, %v", p, err)
	}
}
