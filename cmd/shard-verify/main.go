package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"hex-territory/internal/config"
	"hex-territory/internal/logger"
	"hex-territory/internal/store"
	"hex-territory/internal/utils"

	"github.com/spf13/pflag"
)

// 文档注释：分片元数据巡检与修复
// 背景：hexCount 与 contestedBy 由提交路径增量维护；人工改库或旧版本写入可能使其与格子记录不一致。
// 约束：修复通过比较并交换写回，与在线提交并发安全；playerCounts 为累计值，无法由当前记录还原，不做修改。
func main() {
	var repair bool
	flagSet := pflag.NewFlagSet("shard-verify", pflag.ContinueOnError)
	flagSet.BoolVar(&repair, "repair", false, "write corrected metadata back to the store")
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
	ctx := context.Background()
	rt, err := utils.Bootstrap(ctx, cfg)
	if err != nil {
		l.Error("bootstrap_error", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	rep, err := verify(ctx, rt.Store, repair, l)
	if err != nil {
		l.Error("shard_verify_error", "err", err)
		os.Exit(1)
	}
	l.Info("shard_verify_done", "shards", rep.Shards, "broken", rep.Broken, "repaired", rep.Repaired)
	if rep.Broken > rep.Repaired {
		os.Exit(3)
	}
}

type report struct {
	Shards   int
	Broken   int
	Repaired int
}

const maxRepairAttempts = 5

func verify(ctx context.Context, st store.Store, repair bool, l *slog.Logger) (report, error) {
	var rep report
	ids, err := st.ListShardIDs(ctx)
	if err != nil {
		return rep, err
	}
	for _, id := range ids {
		sh, err := st.LoadShard(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return rep, err
		}
		rep.Shards++
		if !needsRepair(sh) {
			continue
		}
		rep.Broken++
		l.Warn("shard_inconsistent", "shard", id, "hex_count", sh.Metadata.HexCount, "territories", len(sh.Territories))
		if !repair {
			continue
		}
		for attempt := 0; ; attempt++ {
			fixMeta(sh)
			err = st.SaveShard(ctx, sh)
			if err == nil {
				rep.Repaired++
				break
			}
			if !errors.Is(err, store.ErrVersionConflict) || attempt+1 >= maxRepairAttempts {
				return rep, fmt.Errorf("repair %s: %w", id, err)
			}
			if sh, err = st.LoadShard(ctx, id); err != nil {
				return rep, fmt.Errorf("reload %s: %w", id, err)
			}
		}
	}
	return rep, nil
}

// needsRepair：hexCount 偏差或当前占有者未出现在 contestedBy 中
func needsRepair(sh *store.Shard) bool {
	if sh.Check() != nil {
		return true
	}
	for _, rec := range sh.Territories {
		if _, found := slices.BinarySearch(sh.Metadata.ContestedBy, rec.Owner); !found {
			return true
		}
	}
	return !slices.IsSorted(sh.Metadata.ContestedBy)
}

func fixMeta(sh *store.Shard) {
	slices.Sort(sh.Metadata.ContestedBy)
	sh.Metadata.ContestedBy = slices.Compact(sh.Metadata.ContestedBy)
	for _, rec := range sh.Territories {
		sh.AddContender(rec.Owner)
	}
	sh.Recount()
}
