// 包 territory：领地捕获引擎；路径栅格化、分片提交、批量更新、视口查询与用户统计
// 约束：引擎自身不持有进程级可变数据，全部状态经 store.Store 读写
package territory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hex-territory/internal/logger"
	"hex-territory/internal/raster"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
)

// ReplayGuard：按事件号记忆已应用事件的结果，至少一次投递下重复事件直接返回原结果
type ReplayGuard interface {
	// Lookup：found=false 表示未见过该事件
	Lookup(ctx context.Context, id string) (res *EventResult, found bool, err error)
	Remember(ctx context.Context, id string, res *EventResult) error
}

type Options struct {
	Grid   spatial.Grid
	Raster raster.Rasterizer // Res 由 Grid.CaptureRes 覆盖
	Store  store.Store
	// Replay 为 nil 时不做事件去重
	Replay ReplayGuard

	Workers            int // 单次提交的分片并发度，默认 8
	MaxRetries         int // 版本冲突重试次数，默认 5；负数表示不重试
	MaxViewportRegions int // 默认 2000

	Now    func() time.Time
	Logger *slog.Logger
}

type Engine struct {
	grid   spatial.Grid
	raster raster.Rasterizer
	store  store.Store
	locks  *store.KeyLocker
	replay ReplayGuard

	workers     int
	maxRetries  int
	maxViewport int
	now         func() time.Time
	log         *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if err := opts.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("territory: store is required")
	}
	e := &Engine{
		grid:        opts.Grid,
		raster:      opts.Raster,
		store:       opts.Store,
		locks:       &store.KeyLocker{},
		replay:      opts.Replay,
		workers:     opts.Workers,
		maxRetries:  opts.MaxRetries,
		maxViewport: opts.MaxViewportRegions,
		now:         opts.Now,
		log:         opts.Logger,
	}
	e.raster.Res = opts.Grid.CaptureRes
	if e.workers <= 0 {
		e.workers = 8
	}
	if e.maxRetries == 0 {
		e.maxRetries = 5
	} else if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.maxViewport <= 0 {
		e.maxViewport = 2000
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logger.Component("territory")
	}
	return e, nil
}

func (e *Engine) Grid() spatial.Grid { return e.grid }

func (e *Engine) Store() store.Store { return e.store }
