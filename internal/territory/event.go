package territory

import (
	"context"
	"time"

	"hex-territory/internal/errs"
	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
)

// Kind：捕获事件类型
type Kind string

const (
	KindHexClick     Kind = "hex_click"
	KindPathComplete Kind = "path_complete"
	KindBatch        Kind = "batch"
)

// CaptureEvent：三种捕获事件的标签联合；Kind 决定哪个载荷有效
type CaptureEvent struct {
	ID         string                      `json:"id,omitempty"`
	Kind       Kind                        `json:"kind"`
	Click      *ClickSubmission            `json:"click,omitempty"`
	Path       *PathSubmission             `json:"path,omitempty"`
	Batch      map[string][]spatial.CellID `json:"batch,omitempty"`
	OccurredAt time.Time                   `json:"occurredAt,omitzero"`
}

// Validate：类型与载荷一致性检查（载荷内容由各入口继续校验）
func (ev *CaptureEvent) Validate() error {
	var present int
	if ev.Click != nil {
		present++
	}
	if ev.Path != nil {
		present++
	}
	if ev.Batch != nil {
		present++
	}
	if present > 1 {
		return errs.Invalid("event", "exactly one payload expected, got %d", present)
	}
	switch ev.Kind {
	case KindHexClick:
		if ev.Click == nil {
			return errs.Invalid("click", "required for %s", ev.Kind)
		}
	case KindPathComplete:
		if ev.Path == nil {
			return errs.Invalid("path", "required for %s", ev.Kind)
		}
	case KindBatch:
		if ev.Batch == nil {
			return errs.Invalid("batch", "required for %s", ev.Kind)
		}
	default:
		return errs.Invalid("kind", "unknown event kind %q", ev.Kind)
	}
	return nil
}

// EventResult：事件应用结果；Capture 与 Batch 二选一
type EventResult struct {
	EventID string         `json:"eventId,omitempty"`
	Kind    Kind           `json:"kind"`
	Capture *CaptureResult `json:"capture,omitempty"`
	Batch   *BatchResult   `json:"batch,omitempty"`
	// Replayed：结果来自重放记录，本次未重复提交
	Replayed bool `json:"replayed,omitempty"`
}

// Apply：事件统一入口，按 Kind 路由到对应提交路径
// 约束：带 ID 的事件在完整成功后记录结果，重复投递直接返回记录；
// 部分落库的事件不记录，以便重投时补齐失败分片（同一用户重复捕获幂等）
func (e *Engine) Apply(ctx context.Context, ev CaptureEvent) (*EventResult, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.ID != "" && e.replay != nil {
		prev, found, err := e.replay.Lookup(ctx, ev.ID)
		if err != nil {
			e.log.Warn("replay_lookup_error", "event", ev.ID, "err", err)
		} else if found {
			metrics.ReplayHitsTotal.Inc()
			e.log.Debug("replay_hit", "event", ev.ID, "kind", ev.Kind)
			out := *prev
			out.Replayed = true
			return &out, nil
		}
	}

	res := &EventResult{EventID: ev.ID, Kind: ev.Kind}
	var err error
	switch ev.Kind {
	case KindHexClick:
		res.Capture, err = e.ProcessClick(ctx, *ev.Click)
	case KindPathComplete:
		res.Capture, err = e.ProcessPath(ctx, *ev.Path)
	case KindBatch:
		res.Batch, err = e.BatchUpdate(ctx, ev.Batch)
	}
	if res.Capture == nil && res.Batch == nil {
		return nil, err
	}
	if err == nil && ev.ID != "" && e.replay != nil {
		if rerr := e.replay.Remember(ctx, ev.ID, res); rerr != nil {
			e.log.Warn("replay_remember_error", "event", ev.ID, "err", rerr)
		}
	}
	return res, err
}
