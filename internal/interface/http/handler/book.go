package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbook "github.com/xiebiao/bookcatalog/internal/application/book"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/interface/http/dto"
	"github.com/xiebiao/bookcatalog/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/response"
)

// BookHandler 图书HTTP处理器
// 设计说明：
// 1. Handler只负责HTTP相关的事情：解析请求、调用应用层、返回响应
// 2. 路径参数:id同时接受图书ID和slug
type BookHandler struct {
	ingestUseCase   *appbook.IngestBookUseCase
	searchUseCase   *appbook.SearchBooksUseCase
	getUseCase      *appbook.GetBookUseCase
	editionsUseCase *appbook.ListEditionsUseCase
	externalIDs     *appbook.ExternalIDsUseCase
}

// NewBookHandler 创建图书处理器
func NewBookHandler(
	ingestUseCase *appbook.IngestBookUseCase,
	searchUseCase *appbook.SearchBooksUseCase,
	getUseCase *appbook.GetBookUseCase,
	editionsUseCase *appbook.ListEditionsUseCase,
	externalIDs *appbook.ExternalIDsUseCase,
) *BookHandler {
	return &BookHandler{
		ingestUseCase:   ingestUseCase,
		searchUseCase:   searchUseCase,
		getUseCase:      getUseCase,
		editionsUseCase: editionsUseCase,
		externalIDs:     externalIDs,
	}
}

// Ingest 写入图书（规范化upsert）
// @Summary      写入图书
// @Description  按ISBN和外部标识解析身份后合并写入，重复提交幂等
// @Tags         图书
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.IngestBookRequest true "图书数据"
// @Success      200 {object} response.Response{data=appbook.IngestBookResponse}
// @Failure      200 {object} response.Response "40900参数错误 / 40902书名缺失 / 50010锁获取失败(可重试)"
// @Router       /api/v1/books [post]
func (h *BookHandler) Ingest(c *gin.Context) {
	// 1. 参数绑定与验证
	var req dto.IngestBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	// 2. 转换为应用层DTO
	in := appbook.IngestBookRequest{
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
	}
	for _, l := range req.ImageLinks {
		in.ImageLinks = append(in.ImageLinks, appbook.ImageLinkInput{
			Type:     l.Type,
			URL:      l.URL,
			Width:    l.Width,
			Height:   l.Height,
			HighRes:  l.HighRes,
			Provider: l.Provider,
		})
	}
	if req.Dimensions != nil {
		in.Dimensions = &book.Dimensions{
			Height:    req.Dimensions.Height,
			Width:     req.Dimensions.Width,
			Thickness: req.Dimensions.Thickness,
		}
	}

	// 3. 调用应用层用例
	result, err := h.ingestUseCase.Execute(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.LoggerFrom(c).Debug("book ingested",
		zap.String("book_id", result.BookID),
		zap.Bool("is_new", result.IsNew),
		zap.String("caller", middleware.GetService(c)))
	response.Success(c, result)
}

// Search 搜索图书
// @Summary      搜索图书
// @Description  按标题、作者、出版社或ISBN检索，同一作品的多个版本合并为一条
// @Tags         图书
// @Produce      json
// @Param        q     query string true  "关键词"
// @Param        limit query int    false "返回条数(默认20，最大100)"
// @Success      200 {object} response.Response{data=appbook.SearchBooksResponse}
// @Router       /api/v1/books/search [get]
func (h *BookHandler) Search(c *gin.Context) {
	var req dto.SearchBooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.searchUseCase.Execute(c.Request.Context(), appbook.SearchBooksRequest{
		Query: req.Query,
		Limit: req.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Get 图书详情
// @Summary      图书详情
// @Tags         图书
// @Produce      json
// @Param        id path string true "图书ID或slug"
// @Success      200 {object} response.Response{data=appbook.BookDetail}
// @Failure      200 {object} response.Response "40402图书不存在"
// @Router       /api/v1/books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	result, err := h.getUseCase.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Editions 作品的全部版本
// @Summary      版本列表
// @Description  主版本排在第一位；不属于任何作品簇的图书只返回自身
// @Tags         图书
// @Produce      json
// @Param        id path string true "图书ID或slug"
// @Success      200 {object} response.Response{data=appbook.ListEditionsResponse}
// @Router       /api/v1/books/{id}/editions [get]
func (h *BookHandler) Editions(c *gin.Context) {
	result, err := h.editionsUseCase.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ExternalIDs 图书在各数据源的标识
// @Summary      外部标识（反向）
// @Tags         外部标识
// @Produce      json
// @Param        id path string true "图书ID或slug"
// @Success      200 {object} response.Response{data=appbook.ReverseResponse}
// @Router       /api/v1/books/{id}/external-ids [get]
func (h *BookHandler) ExternalIDs(c *gin.Context) {
	result, err := h.externalIDs.Reverse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ResolveExternalID 由数据源标识找图书
// @Summary      外部标识（正向）
// @Tags         外部标识
// @Produce      json
// @Param        source      path string true "数据源，如GOOGLE_BOOKS"
// @Param        external_id path string true "数据源记录ID"
// @Success      200 {object} response.Response{data=appbook.ResolveResponse}
// @Failure      200 {object} response.Response "40405映射不存在"
// @Router       /api/v1/external-ids/{source}/{external_id} [get]
func (h *BookHandler) ResolveExternalID(c *gin.Context) {
	result, err := h.externalIDs.Resolve(c.Request.Context(), c.Param("source"), c.Param("external_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
