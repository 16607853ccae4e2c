package territory

import (
	"context"
	"errors"

	"hex-territory/internal/errs"
	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// GetViewportTerritories：视口覆盖分片中已存在者及其格子总数
// 约束：未被捕获过的区域不会物化，空视口返回成功与空结果
func (e *Engine) GetViewportTerritories(ctx context.Context, b spatial.Bounds, resolution int) (*ViewportResult, error) {
	metrics.ViewportRequestsTotal.Inc()
	ids, err := e.grid.CoveringRegions(b, resolution, e.maxViewport)
	if err != nil {
		return nil, err
	}
	metrics.ViewportRegions.Observe(float64(len(ids)))
	shards, err := e.store.LoadShards(ctx, ids)
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("load_shards").Inc()
		return nil, &errs.PersistenceError{Op: "viewport", Err: err}
	}
	res := &ViewportResult{Regions: shards, RegionIDs: ids}
	for _, sh := range shards {
		res.TotalHexes += sh.Metadata.HexCount
	}
	e.log.Debug("viewport_ok", "covering", len(ids), "existing", len(shards), "hexes", res.TotalHexes)
	return res, nil
}

// GetRegion：读取单个分片；编号须为区域分辨率下的合法格子
func (e *Engine) GetRegion(ctx context.Context, id spatial.RegionID) (*store.Shard, error) {
	c, err := spatial.ParseCell(spatial.CellID(id))
	if err != nil {
		return nil, errs.Invalid("region", "invalid region id %q", string(id))
	}
	if c.Resolution() != e.grid.RegionRes {
		return nil, errs.Invalid("region", "%s has resolution %d, want %d", id, c.Resolution(), e.grid.RegionRes)
	}
	sh, err := e.store.LoadShard(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &errs.NotFoundError{Kind: "region", ID: string(id)}
	}
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("load_shard").Inc()
		return nil, &errs.PersistenceError{Op: "get_region", Region: string(id), Err: err}
	}
	return sh, nil
}

// GetProfile：读取用户画像
func (e *Engine) GetProfile(ctx context.Context, user string) (*store.Profile, error) {
	if user == "" {
		return nil, errs.Invalid("user", "required")
	}
	p, err := e.store.LoadProfile(ctx, user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &errs.NotFoundError{Kind: "user", ID: user}
	}
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("load_profile").Inc()
		return nil, &errs.PersistenceError{Op: "get_profile", Err: err}
	}
	return p, nil
}
