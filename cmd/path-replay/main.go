package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"hex-territory/internal/config"
	"hex-territory/internal/errs"
	"hex-territory/internal/events"
	"hex-territory/internal/logger"
	"hex-territory/internal/territory"
	"hex-territory/internal/utils"

	"github.com/spf13/pflag"
)

// 文档注释：按行重放捕获事件（JSON Lines，每行一个 CaptureEvent）
// 背景：用于导入离线采集的轨迹、迁移后重建领地，或把积压事件写入事件流交由在线实例消费。
// 约束：带事件号的事件经去重记录识别，重复执行同一文件不会重复计入统计。
func main() {
	var (
		file        string
		publish     bool
		stopOnError bool
	)
	flagSet := pflag.NewFlagSet("path-replay", pflag.ContinueOnError)
	flagSet.StringVarP(&file, "file", "f", "-", "JSON lines file with capture events (- for stdin)")
	flagSet.BoolVar(&publish, "publish", false, "append events to EVENTS_STREAM instead of applying them locally")
	flagSet.BoolVar(&stopOnError, "stop-on-error", false, "abort on the first rejected or failed event")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := io.Reader(os.Stdin)
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			l.Error("open_error", "file", file, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var sink func(context.Context, territory.CaptureEvent) error
	if publish {
		rdb, err := utils.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			l.Error("redis_open_error", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		sink = func(ctx context.Context, ev territory.CaptureEvent) error {
			_, err := events.Publish(ctx, rdb, cfg.Events.Stream, ev)
			return err
		}
	} else {
		cfg.Events.Enabled = false
		rt, err := utils.Bootstrap(ctx, cfg)
		if err != nil {
			l.Error("bootstrap_error", "err", err)
			os.Exit(1)
		}
		defer rt.Close()
		sink = func(ctx context.Context, ev territory.CaptureEvent) error {
			_, err := rt.Engine.Apply(ctx, ev)
			return err
		}
	}

	sum, err := replay(ctx, in, sink, stopOnError, l)
	l.Info("path_replay_done", "lines", sum.Lines, "applied", sum.Applied, "rejected", sum.Rejected, "failed", sum.Failed)
	if err != nil {
		l.Error("path_replay_error", "err", err)
		os.Exit(1)
	}
	if sum.Failed > 0 {
		os.Exit(3)
	}
}

type summary struct {
	Lines    int
	Applied  int
	Rejected int
	Failed   int
}

const maxLineBytes = 4 << 20

// replay：逐行解码并交给 sink；空行跳过，解码失败与校验失败计为 rejected
func replay(ctx context.Context, r io.Reader, sink func(context.Context, territory.CaptureEvent) error, stopOnError bool, l *slog.Logger) (summary, error) {
	var sum summary
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		sum.Lines++
		var ev territory.CaptureEvent
		err := json.Unmarshal(line, &ev)
		if err != nil {
			err = errs.Invalid("line", "decode: %v", err)
		} else {
			err = sink(ctx, ev)
		}
		switch events.Classify(err) {
		case events.OutcomeApplied:
			sum.Applied++
			continue
		case events.OutcomeRejected:
			sum.Rejected++
		default:
			sum.Failed++
		}
		l.Warn("replay_line_error", "line", sum.Lines, "event", ev.ID, "err", err)
		if stopOnError {
			return sum, fmt.Errorf("line %d: %w", sum.Lines, err)
		}
	}
	return sum, sc.Err()
}
