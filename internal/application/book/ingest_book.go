package book

import (
	"context"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// IngestBookUseCase 图书写入用例
// 设计说明:
// 1. 应用层负责用例编排，身份解析、合并、聚类都由领域服务完成
// 2. 输入输出使用DTO，与HTTP层解耦
// 3. 同一本书重复提交是幂等的，只有第一次返回IsNew=true
type IngestBookUseCase struct {
	bookService book.Service
}

// NewIngestBookUseCase 创建写入用例
func NewIngestBookUseCase(bookService book.Service) *IngestBookUseCase {
	return &IngestBookUseCase{bookService: bookService}
}

// IngestBookRequest 写入请求DTO
type IngestBookRequest struct {
	Title         string
	Subtitle      string
	Authors       []string
	Categories    []string
	Publisher     string
	PublishedDate string
	Language      string
	PageCount     int
	Description   string
	ISBN13        string
	ISBN10        string
	Source        string // 为空时记为MANUAL
	ExternalID    string
	ImageLinks    []ImageLinkInput
	Dimensions    *book.Dimensions
}

// ImageLinkInput 图片输入
type ImageLinkInput struct {
	Type     string
	URL      string
	Width    int
	Height   int
	HighRes  bool
	Provider string
}

// IngestBookResponse 写入响应DTO
type IngestBookResponse struct {
	BookID string `json:"book_id"`
	Slug   string `json:"slug"`
	IsNew  bool   `json:"is_new"`
}

// Execute 执行写入用例
// 学习要点:
// 1. 标题校验由领域服务在任何I/O之前完成
// 2. 锁获取失败返回可重试错误（50010），调用方可以整体重试
func (uc *IngestBookUseCase) Execute(ctx context.Context, req IngestBookRequest) (*IngestBookResponse, error) {
	// 1. DTO转换为领域输入
	in := book.NormalizedBook{
		Title:         req.Title,
		Subtitle:      req.Subtitle,
		Authors:       req.Authors,
		Categories:    req.Categories,
		Publisher:     req.Publisher,
		PublishedDate: req.PublishedDate,
		Language:      req.Language,
		PageCount:     req.PageCount,
		Description:   req.Description,
		ISBN13:        req.ISBN13,
		ISBN10:        req.ISBN10,
		Source:        req.Source,
		ExternalID:    req.ExternalID,
		Dimensions:    req.Dimensions,
	}
	if in.Source == "" {
		in.Source = book.SourceManual
	}
	for _, l := range req.ImageLinks {
		provider := l.Provider
		if provider == "" {
			provider = in.Source
		}
		in.ImageLinks = append(in.ImageLinks, book.ImageLink{
			Type:     l.Type,
			URL:      l.URL,
			Width:    l.Width,
			Height:   l.Height,
			HighRes:  l.HighRes,
			Provider: provider,
		})
	}

	// 2. 调用领域服务
	result, err := uc.bookService.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}

	// 3. 构建响应DTO
	return &IngestBookResponse{
		BookID: result.BookID,
		Slug:   result.Slug,
		IsNew:  result.IsNew,
	}, nil
}
