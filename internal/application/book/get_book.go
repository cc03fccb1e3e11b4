package book

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// DetailCache 图书详情缓存，未命中返回(nil, nil)
type DetailCache interface {
	Get(ctx context.Context, bookID string) (*book.Book, error)
	Set(ctx context.Context, b *book.Book) error
}

// GetBookUseCase 图书详情用例
// 设计说明:
// 1. 参数可以是ID也可以是slug
// 2. 只有按ID查询走缓存，slug查询直接读库后按ID回填缓存
// 3. 缓存故障只记日志，降级为读库
type GetBookUseCase struct {
	bookService book.Service
	cache       DetailCache
	logger      *zap.Logger
}

// NewGetBookUseCase cache为nil时不使用缓存
func NewGetBookUseCase(bookService book.Service, cache DetailCache, logger *zap.Logger) *GetBookUseCase {
	return &GetBookUseCase{bookService: bookService, cache: cache, logger: logger}
}

// ImageLinkItem 图片DTO
type ImageLinkItem struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	HighRes bool   `json:"high_res"`
	Source  string `json:"source,omitempty"`
}

// DimensionsItem 尺寸DTO
type DimensionsItem struct {
	Height    string `json:"height,omitempty"`
	Width     string `json:"width,omitempty"`
	Thickness string `json:"thickness,omitempty"`
}

// BookDetail 详情响应DTO
type BookDetail struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	ISBN13        string          `json:"isbn13,omitempty"`
	ISBN10        string          `json:"isbn10,omitempty"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle,omitempty"`
	Authors       []string        `json:"authors"`
	Categories    []string        `json:"categories"`
	Publisher     string          `json:"publisher,omitempty"`
	PublishedDate string          `json:"published_date,omitempty"`
	Language      string          `json:"language,omitempty"`
	PageCount     int             `json:"page_count,omitempty"`
	Description   string          `json:"description,omitempty"`
	Source        string          `json:"source"`
	CoverURL      string          `json:"cover_url,omitempty"`
	ImageLinks    []ImageLinkItem `json:"image_links"`
	Dimensions    *DimensionsItem `json:"dimensions,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// Execute 执行详情查询
func (uc *GetBookUseCase) Execute(ctx context.Context, idOrSlug string) (*BookDetail, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, book.ErrBookNotFound
	}

	byID := isUUID(idOrSlug)
	if uc.cache != nil && byID {
		cached, err := uc.cache.Get(ctx, idOrSlug)
		if err != nil {
			uc.logger.Warn("book cache get failed", zap.String("book_id", idOrSlug), zap.Error(err))
		} else if cached != nil {
			return toDetail(cached), nil
		}
	}

	b, err := uc.bookService.GetBook(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, b); err != nil {
			uc.logger.Warn("book cache set failed", zap.String("book_id", b.ID), zap.Error(err))
		}
	}
	return toDetail(b), nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func toDetail(b *book.Book) *BookDetail {
	d := &BookDetail{
		ID:            b.ID,
		Slug:          b.Slug,
		ISBN13:        b.ISBN13,
		ISBN10:        b.ISBN10,
		Title:         b.Title,
		Subtitle:      b.Subtitle,
		Authors:       nonNil(b.Authors),
		Categories:    nonNil(b.Categories),
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		Language:      b.Language,
		PageCount:     b.PageCount,
		Description:   b.Description,
		Source:        b.Source,
		CoverURL:      b.CoverImageURL,
		ImageLinks:    make([]ImageLinkItem, len(b.ImageLinks)),
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.Format(time.RFC3339),
	}
	for i, l := range b.ImageLinks {
		d.ImageLinks[i] = ImageLinkItem{
			Type:    l.Type,
			URL:     l.URL,
			Width:   l.Width,
			Height:  l.Height,
			HighRes: l.HighRes,
			Source:  l.Provider,
		}
	}
	if b.Dimensions != nil && !b.Dimensions.IsEmpty() {
		d.Dimensions = &DimensionsItem{
			Height:    b.Dimensions.Height,
			Width:     b.Dimensions.Width,
			Thickness: b.Dimensions.Thickness,
		}
	}
	return d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
