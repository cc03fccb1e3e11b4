// Package event 图书事件的投递与消费
//
// Dispatcher把发件箱中的事件按写入顺序发布到MQ（至少一次）；
// CacheInvalidator消费book.upserted事件，删除详情缓存和外部标识缓存。
package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/pkg/metrics"
)

// Outbox 投递器使用的发件箱操作
type Outbox interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]*book.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Publisher 按事件ID发布，事件类型作为路由键
type Publisher interface {
	PublishWithID(ctx context.Context, routingKey, messageID string, message interface{}) error
}

// DispatcherOptions 投递参数
type DispatcherOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int // 达到上限的事件不再投递，只保留在表中供排查
}

// Dispatcher 发件箱投递器
// 单实例内串行投递；一批中遇到失败立即停止，保证同一图书的事件不乱序
type Dispatcher struct {
	outbox    Outbox
	publisher Publisher
	opts      DispatcherOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher 创建投递器
func NewDispatcher(outbox Outbox, publisher Publisher, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run 轮询直到ctx取消
// 一批取满时不等待，立即取下一批
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("outbox dispatcher started",
		zap.Duration("poll_interval", d.opts.PollInterval),
		zap.Int("batch_size", d.opts.BatchSize))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-timer.C:
		}

		n, err := d.DispatchOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("outbox dispatch round failed", zap.Error(err))
		}
		wait := d.opts.PollInterval
		if err == nil && n == d.opts.BatchSize {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// DispatchOnce 投递一批，返回成功数
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.FetchPending(ctx, d.opts.BatchSize, d.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range events {
		if err := d.publisher.PublishWithID(ctx, e.EventType, e.ID, e.Payload); err != nil {
			d.recordFailure(ctx, e, err)
			return sent, err
		}
		if err := d.outbox.MarkPublished(ctx, e.ID, d.now().UTC()); err != nil {
			// 消息已发出但状态没更新，下一轮会重复投递，由消费方按MessageId去重
			return sent, err
		}
		metrics.IncOutboxDispatch("success")
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, e *book.OutboxEvent, cause error) {
	if err := d.outbox.MarkFailed(ctx, e.ID, cause); err != nil {
		d.logger.Error("outbox mark failed error", zap.String("event_id", e.ID), zap.Error(err))
	}
	if e.Attempts+1 >= d.opts.MaxAttempts {
		metrics.IncOutboxDispatch("abandoned")
		d.logger.Error("outbox event abandoned after max attempts",
			zap.String("event_id", e.ID),
			zap.String("book_id", e.AggregateID),
			zap.Int("attempts", e.Attempts+1),
			zap.Error(cause))
		return
	}
	metrics.IncOutboxDispatch("failure")
	d.logger.Warn("outbox publish failed",
		zap.String("event_id", e.ID),
		zap.String("book_id", e.AggregateID),
		zap.Int("attempts", e.Attempts+1),
		zap.Error(cause))
}
