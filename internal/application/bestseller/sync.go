// Package bestseller 畅销榜同步：拉取榜单、写入规范图书、安排补全回填
package bestseller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/provider"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/throttle"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

const tracerName = "bookcatalog/application/bestseller"

// Feed 榜单数据源
type Feed interface {
	Current(ctx context.Context, list string) ([]provider.BestsellerEntry, error)
}

// SyncUseCase 畅销榜同步用例
// 设计说明:
// 1. 节流闸门保证最小间隔且同一时刻只有一次同步
// 2. 单条写入失败只计数，不中断整个榜单
// 3. 拉取榜单失败时不刷新节流时间，允许立即重试
type SyncUseCase struct {
	feed   Feed
	books  book.Service
	queue  *backfill.Queue
	gate   *throttle.Gate
	logger *zap.Logger
}

// NewSyncUseCase 创建同步用例；queue为nil时不安排回填
func NewSyncUseCase(feed Feed, books book.Service, queue *backfill.Queue, gate *throttle.Gate, logger *zap.Logger) *SyncUseCase {
	return &SyncUseCase{
		feed:   feed,
		books:  books,
		queue:  queue,
		gate:   gate,
		logger: logger,
	}
}

// SyncRequest 同步请求
type SyncRequest struct {
	List string // 为空时使用默认榜单
}

// SyncResponse 同步结果
type SyncResponse struct {
	List      string `json:"list"`
	Fetched   int    `json:"fetched"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
	Scheduled int    `json:"backfill_scheduled"`
}

// Execute 执行同步
// 学习要点:
// 1. TryAcquire失败直接返回50029，不排队等待
// 2. Release必须在所有路径上调用
func (uc *SyncUseCase) Execute(ctx context.Context, req SyncRequest) (resp *SyncResponse, err error) {
	// 1. 节流
	if !uc.gate.TryAcquire() {
		msg := "畅销榜同步进行中或间隔过短"
		if next := uc.gate.NextAllowed(); !next.IsZero() {
			msg = fmt.Sprintf("%s，下次允许时间: %s", msg, next.UTC().Format(time.RFC3339))
		}
		return nil, apperrors.New(apperrors.ErrCodeThrottled, msg)
	}
	fetched := false
	defer func() { uc.gate.Release(fetched) }()

	ctx, span := tracing.StartSpan(ctx, tracerName, "bestseller.Sync")
	defer func() { tracing.EndSpan(span, err) }()

	// 2. 拉取榜单
	list := strings.TrimSpace(req.List)
	entries, err := uc.feed.Current(ctx, list)
	if err != nil {
		uc.logger.Warn("bestseller feed fetch failed", zap.String("list", list), zap.Error(err))
		return nil, err
	}
	fetched = true

	// 3. 逐条写入并安排回填
	resp = &SyncResponse{List: list, Fetched: len(entries)}
	for _, e := range entries {
		res, err := uc.books.Upsert(ctx, e.Book)
		if err != nil {
			resp.Failed++
			uc.logger.Warn("bestseller entry upsert failed",
				zap.Int("rank", e.Rank),
				zap.String("title", e.Book.Title),
				zap.Error(err))
			continue
		}
		if res.IsNew {
			resp.Created++
		} else {
			resp.Updated++
		}
		resp.Scheduled += uc.scheduleBackfill(ctx, res.BookID, e.Book)
	}

	uc.logger.Info("bestseller sync finished",
		zap.String("list", list),
		zap.Int("fetched", resp.Fetched),
		zap.Int("created", resp.Created),
		zap.Int("updated", resp.Updated),
		zap.Int("failed", resp.Failed),
		zap.Int("scheduled", resp.Scheduled))
	return resp, nil
}

// scheduleBackfill 榜单数据很简略，缺哪个数据源的映射就补哪个
func (uc *SyncUseCase) scheduleBackfill(ctx context.Context, bookID string, in book.NormalizedBook) int {
	if uc.queue == nil {
		return 0
	}
	isbn := book.SanitizeISBN(in.ISBN13)
	if isbn == "" {
		isbn = book.SanitizeISBN(in.ISBN10)
	}
	if isbn == "" {
		return 0
	}

	linked, err := uc.books.ExternalIDs(ctx, bookID)
	if err != nil {
		uc.logger.Warn("external id lookup failed", zap.String("book_id", bookID), zap.Error(err))
		return 0
	}

	n := 0
	for _, source := range []string{book.SourceGoogleBooks, book.SourceOpenLibrary} {
		if _, ok := linked[source]; ok {
			continue
		}
		if uc.queue.Enqueue(source, provider.ISBNPrefix+isbn, appbackfill.PriorityBestseller) {
			n++
		}
	}
	return n
}

// Run 按固定周期同步，直到ctx取消；节流拒绝不算失败
func (uc *SyncUseCase) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := uc.Execute(ctx, SyncRequest{}); err != nil &&
				apperrors.CodeOf(err) != apperrors.ErrCodeThrottled && ctx.Err() == nil {
				uc.logger.Error("scheduled bestseller sync failed", zap.Error(err))
			}
		}
	}
}
