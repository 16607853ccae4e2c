// 包 events：Redis Streams 捕获事件消费者；消费组语义，至少一次投递
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hex-territory/internal/config"
	"hex-territory/internal/errs"
	"hex-territory/internal/logger"
	"hex-territory/internal/metrics"
	"hex-territory/internal/territory"

	"github.com/redis/go-redis/v9"
)

// payloadField：消息体中承载事件 JSON 的字段名
const payloadField = "event"

// Applier：事件落地入口，由 *territory.Engine 实现
type Applier interface {
	Apply(ctx context.Context, ev territory.CaptureEvent) (*territory.EventResult, error)
}

type Consumer struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	batch    int64
	backoff  time.Duration
	apply    Applier
	log      *slog.Logger
}

func NewConsumer(rdb *redis.Client, c config.Events, apply Applier) *Consumer {
	name := c.Consumer
	if name == "" {
		name = "engine"
	}
	batch := c.Batch
	if batch <= 0 {
		batch = 32
	}
	return &Consumer{
		rdb:      rdb,
		stream:   c.Stream,
		group:    c.Group,
		consumer: name,
		block:    c.Block,
		batch:    batch,
		backoff:  time.Second,
		apply:    apply,
		log:      logger.Component("events"),
	}
}

// Run：阻塞消费直到 ctx 结束
// 约束：
// - 启动时先重读本消费者名下的挂起消息（"0"），清空后切换到新消息（">"）；
// - 成功或校验失败的消息确认；持久化失败的消息保持挂起，退避后重读挂起列表；
// - 消息体缺少事件号时以流消息号作为事件号，重投时由去重记录识别。
func (c *Consumer) Run(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	c.log.Info("events_consumer_start", "stream", c.stream, "group", c.group, "consumer", c.consumer)

	start := "0"
	for ctx.Err() == nil {
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, start},
			Count:    c.batch,
			Block:    c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.Warn("events_read_error", "err", err)
			sleep(ctx, c.backoff)
			continue
		}
		n, retry := 0, false
		for _, s := range streams {
			for _, m := range s.Messages {
				n++
				if !c.handle(ctx, m) {
					retry = true
				}
			}
		}
		switch {
		case retry:
			start = "0"
			sleep(ctx, c.backoff)
		case start == "0" && n == 0:
			start = ">"
		}
	}
	c.log.Info("events_consumer_stop")
	return nil
}

// handle：处理单条消息，返回是否已确认
func (c *Consumer) handle(ctx context.Context, m redis.XMessage) bool {
	ev, err := Decode(m.Values)
	if err == nil && ev.ID == "" {
		ev.ID = "stream:" + m.ID
	}
	if err == nil {
		_, err = c.apply.Apply(ctx, ev)
	}
	outcome := Classify(err)
	metrics.EventsConsumedTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRetry {
		c.log.Warn("event_apply_retry", "msg", m.ID, "event", ev.ID, "err", err)
		return false
	}
	if err != nil {
		c.log.Warn("event_dropped", "msg", m.ID, "outcome", outcome, "err", err)
	}
	if err := c.rdb.XAck(ctx, c.stream, c.group, m.ID).Err(); err != nil {
		c.log.Warn("event_ack_error", "msg", m.ID, "err", err)
		return false
	}
	return true
}

const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeRetry    = "retry"
)

// Classify：应用结果到消息处置；校验失败重投也不会成功，直接确认
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeApplied
	case errs.IsValidation(err):
		return OutcomeRejected
	}
	return OutcomeRetry
}

// Decode：从流消息字段解析事件
func Decode(values map[string]any) (territory.CaptureEvent, error) {
	var ev territory.CaptureEvent
	raw, ok := values[payloadField]
	if !ok {
		return ev, errs.Invalid(payloadField, "missing field")
	}
	s, ok := raw.(string)
	if !ok {
		return ev, errs.Invalid(payloadField, "unexpected type %T", raw)
	}
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		return ev, errs.Invalid(payloadField, "decode: %v", err)
	}
	return ev, nil
}

// Publish：写入一条捕获事件，返回流消息号
func Publish(ctx context.Context, rdb *redis.Client, stream string, ev territory.CaptureEvent) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(b)},
	}).Result()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
