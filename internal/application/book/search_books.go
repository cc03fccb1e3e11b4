package book

import (
	"context"
	"strings"

	"go.uber.org/zap"

	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

const tracerName = "bookcatalog/application/book"

// 检索放大倍数：去重会折叠命中，先多取再截断
const overFetch = 3

// SearchBooksUseCase 图书搜索用例
// 设计说明:
// 1. 词法检索返回按版本的命中，去重器折叠为按作品的结果
// 2. 还没有Google Books映射的结果顺带安排低优先级回填
// 3. 回填只是入队，不阻塞搜索响应
type SearchBooksUseCase struct {
	searcher search.LexicalSearcher
	dedup    *search.Deduplicator
	queue    *backfill.Queue
	logger   *zap.Logger
}

// NewSearchBooksUseCase 创建搜索用例；queue为nil时不安排回填
func NewSearchBooksUseCase(searcher search.LexicalSearcher, dedup *search.Deduplicator, queue *backfill.Queue, logger *zap.Logger) *SearchBooksUseCase {
	return &SearchBooksUseCase{
		searcher: searcher,
		dedup:    dedup,
		queue:    queue,
		logger:   logger,
	}
}

// SearchBooksRequest 搜索请求DTO
type SearchBooksRequest struct {
	Query string // 标题、作者、出版社或ISBN
	Limit int
}

// SearchResultItem 单个作品结果
type SearchResultItem struct {
	BookID       string   `json:"book_id"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	Slug         string   `json:"slug"`
	ISBN13       string   `json:"isbn13,omitempty"`
	CoverURL     string   `json:"cover_url,omitempty"`
	Score        float64  `json:"score"`
	MatchType    string   `json:"match_type"`
	EditionCount int      `json:"edition_count"`
	ClusterID    string   `json:"cluster_id,omitempty"`
}

// SearchBooksResponse 搜索响应DTO
type SearchBooksResponse struct {
	Query     string             `json:"query"`
	Results   []SearchResultItem `json:"results"`
	Total     int                `json:"total"`
	Scheduled int                `json:"backfill_scheduled"`
}

// Execute 执行搜索用例
// 学习要点:
// 1. 参数默认值处理(limit默认20，最大100)
// 2. 去重失败会降级，不会让搜索失败；检索本身失败才返回错误
// 3. 输出保持检索顺序
func (uc *SearchBooksUseCase) Execute(ctx context.Context, req SearchBooksRequest) (resp *SearchBooksResponse, err error) {
	// 1. 参数校验与默认值
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "搜索关键词不能为空")
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "book.Search")
	defer func() { tracing.EndSpan(span, err) }()

	// 2. 词法检索
	hits, err := uc.searcher.Search(ctx, query, req.Limit*overFetch)
	if err != nil {
		return nil, err
	}

	// 3. 两轮去重后截断
	hits = uc.dedup.Deduplicate(ctx, hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	// 4. 安排回填
	scheduled := uc.scheduleBackfill(hits)

	// 5. 转换为DTO
	results := make([]SearchResultItem, len(hits))
	for i, h := range hits {
		results[i] = SearchResultItem{
			BookID:       h.BookID,
			Title:        h.Title,
			Authors:      h.Authors,
			Slug:         h.Slug,
			ISBN13:       h.ISBN13,
			CoverURL:     h.CoverURL,
			Score:        h.Score,
			MatchType:    h.MatchType,
			EditionCount: h.EditionCount,
			ClusterID:    h.ClusterID,
		}
	}

	return &SearchBooksResponse{
		Query:     query,
		Results:   results,
		Total:     len(results),
		Scheduled: scheduled,
	}, nil
}

// scheduleBackfill 只处理有ISBN-13且缺少Google Books映射的结果
// 合并到主版本后映射情况未知的命中也会入队，重复任务由队列幂等过滤
func (uc *SearchBooksUseCase) scheduleBackfill(hits []search.SearchHit) int {
	if uc.queue == nil {
		return 0
	}
	n := 0
	for _, h := range hits {
		if h.ISBN13 == "" || h.HasSource(book.SourceGoogleBooks) {
			continue
		}
		if uc.queue.Enqueue(book.SourceGoogleBooks, "isbn:"+h.ISBN13, appbackfill.PrioritySearch) {
			n++
		}
	}
	if n > 0 {
		uc.logger.Debug("backfill scheduled from search", zap.Int("tasks", n))
	}
	return n
}
