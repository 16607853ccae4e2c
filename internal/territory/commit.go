package territory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"hex-territory/internal/errs"
	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"

	"github.com/uber/h3-go/v4"
)

// CommitRequest：一次提交的格子集合与归属信息；Cells 中的重复项只写入一次
type CommitRequest struct {
	Cells  []h3.Cell
	Owner  string
	Color  string
	Method store.Method
}

// CommitResult：确实落库的部分
type CommitResult struct {
	RegionsAffected []spatial.RegionID
	Conflicts       map[spatial.CellID]string // 格子 -> 原归属者
	AppliedCount    int
	Applied         []spatial.CellID
}

type shardOutcome struct {
	region    spatial.RegionID
	conflicts map[spatial.CellID]string
	applied   []spatial.CellID
	err       error
}

// partition：按分片分组，分片与格子均排序，重复格子去重
func (e *Engine) partition(cells []h3.Cell) (map[spatial.RegionID][]spatial.CellID, []spatial.RegionID, error) {
	groups := make(map[spatial.RegionID]spatial.CellSet)
	for _, c := range cells {
		p, err := spatial.ParentOf(c, e.grid.RegionRes)
		if err != nil {
			return nil, nil, err
		}
		id := spatial.RegionID(p.String())
		set := groups[id]
		if set == nil {
			set = make(spatial.CellSet)
			groups[id] = set
		}
		set.Add(c)
	}
	out := make(map[spatial.RegionID][]spatial.CellID, len(groups))
	for id, set := range groups {
		out[id] = spatial.IDs(set.Sorted())
	}
	order := slices.Sorted(maps.Keys(out))
	return out, order, nil
}

// Commit：按分片并行读改写；分片之间无事务
// 约束：
// - 单个分片的读改写在进程内由分片锁串行，跨进程由版本比较并交换保证不丢更新；
// - 部分分片失败时返回已落库部分与 *errs.PartialApplicationError；
// - 全部失败时返回 *errs.PersistenceError。
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.Owner == "" {
		return nil, errs.Invalid("user", "required")
	}
	if !req.Method.Valid() {
		return nil, errs.Invalid("method", "unknown method %q", req.Method)
	}
	res := &CommitResult{Conflicts: map[spatial.CellID]string{}}
	if len(req.Cells) == 0 {
		return res, nil
	}
	groups, order, err := e.partition(req.Cells)
	if err != nil {
		return nil, err
	}

	outcomes := make([]shardOutcome, len(order))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, id := range order {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id spatial.RegionID) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.commitShard(ctx, id, groups[id], req)
		}(i, id)
	}
	wg.Wait()

	var (
		committed, failed []string
		firstErr          error
	)
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, string(o.region))
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		committed = append(committed, string(o.region))
		res.RegionsAffected = append(res.RegionsAffected, o.region)
		res.Applied = append(res.Applied, o.applied...)
		maps.Copy(res.Conflicts, o.conflicts)
	}
	res.AppliedCount = len(res.Applied)

	metrics.CellsAppliedTotal.WithLabelValues(string(req.Method)).Add(float64(res.AppliedCount))
	metrics.ConflictsTotal.Add(float64(len(res.Conflicts)))
	switch {
	case len(failed) == 0:
		e.log.Debug("commit_ok", "owner", req.Owner, "method", req.Method,
			"regions", len(committed), "applied", res.AppliedCount, "conflicts", len(res.Conflicts))
		return res, nil
	case len(committed) == 0:
		e.log.Error("commit_failed", "owner", req.Owner, "regions", failed, "err", firstErr)
		return nil, &errs.PersistenceError{Op: "commit", Region: failed[0], Err: firstErr}
	default:
		e.log.Warn("commit_partial", "owner", req.Owner, "committed", committed, "failed", failed, "err", firstErr)
		return res, &errs.PartialApplicationError{
			Committed: committed,
			Failed:    failed,
			Applied:   res.AppliedCount,
			Err:       firstErr,
		}
	}
}

// commitShard：单分片临界区；版本冲突时重读重放，最多 maxRetries 次
func (e *Engine) commitShard(ctx context.Context, id spatial.RegionID, cells []spatial.CellID, req CommitRequest) shardOutcome {
	out := shardOutcome{region: id}
	unlock := e.locks.Lock(string(id))
	defer unlock()

	start := time.Now()
	defer func() { metrics.ShardCommitDurationMs.Observe(float64(time.Since(start).Milliseconds())) }()

	for attempt := 0; ; attempt++ {
		sh, err := e.store.LoadShard(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			sh = store.NewShard(id)
		} else if err != nil {
			metrics.PersistenceFailuresTotal.WithLabelValues("load_shard").Inc()
			out.err = err
			return out
		}
		conflicts := applyCells(sh, cells, req, e.now())
		err = e.store.SaveShard(ctx, sh)
		if err == nil {
			out.conflicts = conflicts
			out.applied = cells
			return out
		}
		if errors.Is(err, store.ErrVersionConflict) && attempt < e.maxRetries {
			metrics.ShardRetriesTotal.Inc()
			e.log.Debug("shard_retry", "region", id, "attempt", attempt+1)
			continue
		}
		metrics.PersistenceFailuresTotal.WithLabelValues("save_shard").Inc()
		out.err = err
		return out
	}
}

// applyCells：逐格写入归属记录并更新元数据；返回原归属者不同的格子
// 约束：同一用户重复捕获不计冲突，但仍重写记录并计入 PlayerCounts
func applyCells(sh *store.Shard, cells []spatial.CellID, req CommitRequest, now time.Time) map[spatial.CellID]string {
	conflicts := make(map[spatial.CellID]string)
	for _, c := range cells {
		if prev, ok := sh.Territories[c]; ok && prev.Owner != req.Owner {
			conflicts[c] = prev.Owner
		}
		sh.Territories[c] = store.TerritoryRecord{
			Owner:      req.Owner,
			Color:      req.Color,
			CapturedAt: now,
			Method:     req.Method,
		}
	}
	sh.Metadata.PlayerCounts[req.Owner] += len(cells)
	sh.AddContender(req.Owner)
	sh.Metadata.LastUpdate = now
	sh.Recount()
	return conflicts
}
