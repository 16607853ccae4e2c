package territory

import (
	"context"
	"errors"
	"maps"
	"slices"

	"hex-territory/internal/errs"
	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	"github.com/uber/h3-go/v4"
)

// BatchUpdate：绕过栅格化，直接按用户提交预解析的格子列表
// 约束：
// - 先整体校验（用户非空、格子为捕获分辨率下的合法编号），任一不合法则不写入任何数据；
// - 用户按字典序依次提交，同一批内后提交者覆盖先提交者；
// - Updated 按条目计数（列表内重复项各计一次），Users 为列表非空的用户数。
func (e *Engine) BatchUpdate(ctx context.Context, updates map[string][]spatial.CellID) (*BatchResult, error) {
	parsed := make(map[string][]h3.Cell, len(updates))
	for user, ids := range updates {
		if user == "" {
			return nil, errs.Invalid("user", "required")
		}
		cells := make([]h3.Cell, len(ids))
		for i, id := range ids {
			c, err := e.grid.CaptureCell(id)
			if err != nil {
				return nil, err
			}
			cells[i] = c
		}
		parsed[user] = cells
	}

	res := &BatchResult{RegionsAffected: []spatial.RegionID{}, Conflicts: map[spatial.CellID]Takeover{}}
	regions := make(map[spatial.RegionID]struct{})
	var (
		committed, failed []string
		firstErr          error
	)
	for _, user := range slices.Sorted(maps.Keys(parsed)) {
		cells := parsed[user]
		if len(cells) == 0 {
			continue
		}
		color := e.colorFor(ctx, user)
		cr, err := e.Commit(ctx, CommitRequest{Cells: cells, Owner: user, Color: color, Method: store.MethodBatch})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			var pa *errs.PartialApplicationError
			var pe *errs.PersistenceError
			switch {
			case errors.As(err, &pa):
				committed = append(committed, pa.Committed...)
				failed = append(failed, pa.Failed...)
			case errors.As(err, &pe):
				failed = append(failed, pe.Region)
			}
		}
		if cr == nil {
			continue
		}
		metrics.CapturesTotal.WithLabelValues(string(store.MethodBatch)).Inc()
		if err == nil {
			res.Updated += len(cells)
			for _, r := range cr.RegionsAffected {
				committed = append(committed, string(r))
			}
		} else {
			res.Updated += cr.AppliedCount
		}
		res.Users++
		for _, r := range cr.RegionsAffected {
			regions[r] = struct{}{}
		}
		for cell, prev := range cr.Conflicts {
			res.Conflicts[cell] = Takeover{Previous: prev, New: user}
		}
		e.recordStats(ctx, user, color, cr.AppliedCount, cr.RegionsAffected)
	}
	res.RegionsAffected = slices.Sorted(maps.Keys(regions))
	if res.RegionsAffected == nil {
		res.RegionsAffected = []spatial.RegionID{}
	}
	e.log.Info("batch_ok", "updated", res.Updated, "users", res.Users,
		"regions", len(res.RegionsAffected), "conflicts", len(res.Conflicts))

	if firstErr == nil {
		return res, nil
	}
	if res.Users == 0 {
		return nil, firstErr
	}
	slices.Sort(committed)
	slices.Sort(failed)
	return res, &errs.PartialApplicationError{
		Committed: slices.Compact(committed),
		Failed:    slices.Compact(failed),
		Applied:   res.Updated,
		Err:       firstErr,
	}
}
