package book

import (
	"context"
	"strings"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

// ExternalIDsUseCase 外部标识查询（正向与反向）
type ExternalIDsUseCase struct {
	bookService book.Service
}

// NewExternalIDsUseCase 创建外部标识用例
func NewExternalIDsUseCase(bookService book.Service) *ExternalIDsUseCase {
	return &ExternalIDsUseCase{bookService: bookService}
}

// ResolveResponse 正向查询响应
type ResolveResponse struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	BookID     string `json:"book_id"`
}

// ReverseResponse 反向查询响应
type ReverseResponse struct {
	BookID      string            `json:"book_id"`
	ExternalIDs map[string]string `json:"external_ids"`
}

// Resolve (source, externalId) → bookId，不存在返回ErrMappingNotFound
func (uc *ExternalIDsUseCase) Resolve(ctx context.Context, source, externalID string) (*ResolveResponse, error) {
	source = strings.ToUpper(strings.TrimSpace(source))
	externalID = strings.TrimSpace(externalID)
	if source == "" || externalID == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "source和external_id不能为空")
	}
	id, err := uc.bookService.ResolveExternalID(ctx, source, externalID)
	if err != nil {
		return nil, err
	}
	return &ResolveResponse{Source: source, ExternalID: externalID, BookID: id}, nil
}

// Reverse 参数接受ID或slug；图书存在但没有映射时返回空map
func (uc *ExternalIDsUseCase) Reverse(ctx context.Context, idOrSlug string) (*ReverseResponse, error) {
	b, err := uc.bookService.GetBook(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	ids, err := uc.bookService.ExternalIDs(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = map[string]string{}
	}
	return &ReverseResponse{BookID: b.ID, ExternalIDs: ids}, nil
}
