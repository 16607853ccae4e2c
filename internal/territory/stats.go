package territory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// recordStats：提交成功（含部分成功）后更新用户画像
// 约束：派生数据，失败只记日志与指标，不影响捕获结果
func (e *Engine) recordStats(ctx context.Context, user, color string, applied int, regions []spatial.RegionID) {
	if err := e.updateProfile(ctx, user, color, applied, regions); err != nil {
		metrics.StatsFailuresTotal.Inc()
		e.log.Warn("stats_update_error", "user", user, "applied", applied, "err", err)
	}
}

func (e *Engine) updateProfile(ctx context.Context, user, color string, applied int, regions []spatial.RegionID) error {
	for attempt := 0; ; attempt++ {
		now := e.now()
		p, err := e.store.LoadProfile(ctx, user)
		if errors.Is(err, store.ErrNotFound) {
			p = &store.Profile{User: user, Color: color, CreatedAt: now}
		} else if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if p.Color == "" {
			p.Color = color
		}
		p.Stats.TotalCaptures++
		p.Stats.TotalHexes += int64(applied)
		p.Stats.LargestCapture = max(p.Stats.LargestCapture, applied)
		p.Stats.LastActive = now
		p.AddRegions(regions...)

		err = e.store.SaveProfile(ctx, p)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) && attempt < e.maxRetries {
			continue
		}
		return fmt.Errorf("save profile: %w", err)
	}
}

// DefaultColor：由用户号哈希得到稳定的颜色，批量更新且用户无画像时使用
func DefaultColor(user string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	return fmt.Sprintf("#%06x", h.Sum32()&0xffffff)
}

// colorFor：优先使用画像中的颜色
func (e *Engine) colorFor(ctx context.Context, user string) string {
	p, err := e.store.LoadProfile(ctx, user)
	if err == nil && p.Color != "" {
		return p.Color
	}
	return DefaultColor(user)
}
