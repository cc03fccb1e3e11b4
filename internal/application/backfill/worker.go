// Package backfill 回填：把外部数据源的记录拉取下来并upsert到规范目录
package backfill

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/metrics"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

const tracerName = "bookcatalog/application/backfill"

// 任务优先级（数字越小越先执行）
const (
	PriorityManual     = 1 // 运维手动触发
	PriorityBestseller = 3 // 畅销榜同步
	PrioritySearch     = 5 // 搜索结果补全
)

// Fetcher 按数据源拉取记录（provider.Registry实现）
type Fetcher interface {
	Fetch(ctx context.Context, source, sourceID string) (*book.NormalizedBook, error)
}

// Options 工作池参数
type Options struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration // 第n次重试等待RetryBackoff * 2^(n-1)
}

// Pool 回填工作池
// 设计说明:
// 1. N个worker阻塞在Queue.Take上，ctx取消后全部退出
// 2. 成功或放弃时MarkCompleted释放去重键；重试时保留去重键，延迟后Retry
// 3. 只有服务端错误（5xxxx）重试，调用方错误（如无此记录、缺少标题）直接放弃
type Pool struct {
	queue   *backfill.Queue
	fetcher Fetcher
	books   book.Service
	opts    Options
	logger  *zap.Logger
}

// NewPool 创建工作池
func NewPool(queue *backfill.Queue, fetcher Fetcher, books book.Service, opts Options, logger *zap.Logger) *Pool {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pool{queue: queue, fetcher: fetcher, books: books, opts: opts, logger: logger}
}

// Run 启动worker并阻塞到ctx结束
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	p.logger.Info("backfill workers started", zap.Int("workers", p.opts.Workers))
	err := g.Wait()
	p.logger.Info("backfill workers stopped", zap.Int("pending", p.queue.Pending()))
	return err
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		t, err := p.queue.Take(ctx)
		if err != nil {
			return
		}
		p.process(ctx, worker, t)
	}
}

// process 处理一个任务，返回前一定调用MarkCompleted或安排Retry
func (p *Pool) process(ctx context.Context, worker int, t backfill.Task) {
	log := p.logger.With(
		zap.Int("worker", worker),
		zap.String("source", t.Source),
		zap.String("source_id", t.SourceID),
		zap.Int("attempt", t.Attempts+1))

	res, err := p.run(ctx, t)
	if err == nil {
		p.queue.MarkCompleted(t)
		metrics.IncBackfillTask(t.Source, "success")
		log.Debug("backfill task done", zap.String("book_id", res.BookID), zap.Bool("is_new", res.IsNew))
		return
	}

	t.Attempts++
	if !retryable(err) || t.Attempts >= p.opts.MaxAttempts || ctx.Err() != nil {
		p.queue.MarkCompleted(t)
		metrics.IncBackfillTask(t.Source, "abandoned")
		log.Warn("backfill task abandoned", zap.Error(err))
		return
	}

	delay := p.backoff(t.Attempts)
	metrics.IncBackfillTask(t.Source, "retry")
	log.Info("backfill task will retry", zap.Duration("delay", delay), zap.Error(err))
	time.AfterFunc(delay, func() {
		if !p.queue.Retry(t) {
			metrics.IncBackfillTask(t.Source, "rejected")
			p.logger.Warn("backfill retry rejected: queue full",
				zap.String("source", t.Source), zap.String("source_id", t.SourceID))
		}
	})
}

func (p *Pool) run(ctx context.Context, t backfill.Task) (res *book.UpsertResult, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "backfill.Task")
	defer func() { tracing.EndSpan(span, err) }()

	nb, err := p.fetcher.Fetch(ctx, t.Source, t.SourceID)
	if err != nil {
		return nil, err
	}
	return p.books.Upsert(ctx, *nb)
}

func (p *Pool) backoff(attempts int) time.Duration {
	if p.opts.RetryBackoff <= 0 {
		return 0
	}
	d := p.opts.RetryBackoff
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

// retryable 服务端错误重试；非AppError（网络、解码）也按服务端错误处理
func retryable(err error) bool {
	return apperrors.CodeOf(err) >= 50000
}
