package territory

import (
	"context"
	"time"

	"hex-territory/internal/errs"
	"hex-territory/internal/metrics"
	"hex-territory/internal/raster"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	"github.com/google/uuid"
	"github.com/uber/h3-go/v4"
)

const maxColorLen = 32

func validateOwner(user, color string) error {
	if user == "" {
		return errs.Invalid("user", "required")
	}
	if color == "" {
		return errs.Invalid("color", "required")
	}
	if len(color) > maxColorLen {
		return errs.Invalid("color", "longer than %d bytes", maxColorLen)
	}
	return nil
}

// ProcessPath：栅格化路径并提交捕获格子
// 约束：校验失败不修改任何状态；部分落库时同时返回结果与 *errs.PartialApplicationError
func (e *Engine) ProcessPath(ctx context.Context, sub PathSubmission) (*CaptureResult, error) {
	start := time.Now()
	if err := validateOwner(sub.User, sub.Color); err != nil {
		return nil, err
	}
	tr, err := e.raster.Rasterize(sub.Coordinates, sub.Options)
	if err != nil {
		return nil, err
	}
	metrics.RasterizeDurationMs.WithLabelValues(string(tr.PathType)).Observe(float64(time.Since(start).Milliseconds()))

	method := store.MethodPath
	if tr.PathType == raster.SingleHex {
		method = store.MethodClick
	}
	return e.capture(ctx, sub.User, sub.Color, method, tr, start)
}

// ProcessClick：单击捕获坐标所在格子
func (e *Engine) ProcessClick(ctx context.Context, sub ClickSubmission) (*CaptureResult, error) {
	start := time.Now()
	if err := validateOwner(sub.User, sub.Color); err != nil {
		return nil, err
	}
	cell, err := spatial.Locate(sub.Coordinate, e.grid.CaptureRes)
	if err != nil {
		return nil, err
	}
	cells := []h3.Cell{cell}
	tr := &raster.Trace{PathType: raster.SingleHex, HexPath: cells, Boundary: cells, Captured: cells}
	return e.capture(ctx, sub.User, sub.Color, store.MethodClick, tr, start)
}

func (e *Engine) capture(ctx context.Context, user, color string, method store.Method, tr *raster.Trace, start time.Time) (*CaptureResult, error) {
	cr, err := e.Commit(ctx, CommitRequest{Cells: tr.Captured, Owner: user, Color: color, Method: method})
	if cr == nil {
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues(string(method)).Inc()
	e.recordStats(ctx, user, color, cr.AppliedCount, cr.RegionsAffected)

	res := &CaptureResult{
		ID:              uuid.NewString(),
		PathType:        tr.PathType,
		HexPath:         spatial.IDs(tr.HexPath),
		UniqueHexes:     len(tr.HexPath),
		LoopClosed:      tr.LoopClosed,
		HexesCaptured:   len(tr.Captured),
		BoundaryHexes:   len(tr.Boundary),
		InteriorHexes:   len(tr.Interior),
		AppliedCount:    cr.AppliedCount,
		RegionsAffected: cr.RegionsAffected,
		Conflicts:       cr.Conflicts,
		ProcessingTime:  time.Since(start).Milliseconds(),
	}
	if res.RegionsAffected == nil {
		res.RegionsAffected = []spatial.RegionID{}
	}
	e.log.Info("capture_ok", "id", res.ID, "user", user, "path_type", res.PathType,
		"captured", res.HexesCaptured, "applied", res.AppliedCount, "conflicts", len(res.Conflicts),
		"duration_ms", res.ProcessingTime)
	return res, err
}
