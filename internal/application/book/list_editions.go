package book

import (
	"context"
	"errors"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// ListEditionsUseCase 作品版本列表用例
// 参数同样接受ID或slug，先解析为图书ID再查簇
type ListEditionsUseCase struct {
	bookService book.Service
}

// NewListEditionsUseCase 创建版本列表用例
func NewListEditionsUseCase(bookService book.Service) *ListEditionsUseCase {
	return &ListEditionsUseCase{bookService: bookService}
}

// EditionItem 版本DTO
type EditionItem struct {
	BookID        string  `json:"book_id"`
	Title         string  `json:"title"`
	Slug          string  `json:"slug"`
	ISBN13        string  `json:"isbn13,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	CoverURL      string  `json:"cover_url,omitempty"`
	Confidence    float64 `json:"confidence"`
	IsPrimary     bool    `json:"is_primary"`
}

// ListEditionsResponse 版本列表响应
// 不属于任何簇的图书返回只含自身的单元素列表
type ListEditionsResponse struct {
	ClusterID   string        `json:"cluster_id,omitempty"`
	Method      string        `json:"method,omitempty"`
	MemberCount int           `json:"member_count"`
	Editions    []EditionItem `json:"editions"`
}

// Execute 主版本排在第一位
func (uc *ListEditionsUseCase) Execute(ctx context.Context, idOrSlug string) (*ListEditionsResponse, error) {
	b, err := uc.bookService.GetBook(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	cluster, members, err := uc.bookService.ListEditions(ctx, b.ID)
	if errors.Is(err, book.ErrNotClustered) {
		return &ListEditionsResponse{
			MemberCount: 1,
			Editions: []EditionItem{{
				BookID:        b.ID,
				Title:         b.Title,
				Slug:          b.Slug,
				ISBN13:        b.ISBN13,
				PublishedDate: b.PublishedDate,
				CoverURL:      b.CoverImageURL,
				Confidence:    1,
				IsPrimary:     true,
			}},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &ListEditionsResponse{
		ClusterID:   cluster.ID,
		Method:      cluster.Method,
		MemberCount: cluster.MemberCount,
		Editions:    make([]EditionItem, len(members)),
	}
	for i, m := range members {
		resp.Editions[i] = EditionItem{
			BookID:        m.BookID,
			Title:         m.Title,
			Slug:          m.Slug,
			ISBN13:        m.ISBN13,
			PublishedDate: m.PublishedDate,
			CoverURL:      m.CoverURL,
			Confidence:    m.Confidence,
			IsPrimary:     i == 0,
		}
	}
	return resp, nil
}
