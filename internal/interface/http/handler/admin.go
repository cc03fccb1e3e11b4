package handler

import (
	"github.com/gin-gonic/gin"

	appauth "github.com/xiebiao/bookcatalog/internal/application/auth"
	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	appbestseller "github.com/xiebiao/bookcatalog/internal/application/bestseller"
	"github.com/xiebiao/bookcatalog/internal/interface/http/dto"
	"github.com/xiebiao/bookcatalog/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/response"
)

// AdminHandler 运维类接口：回填、榜单同步、服务令牌
// 全部需要服务令牌，scope由路由注册时指定
type AdminHandler struct {
	scheduleUseCase *appbackfill.ScheduleUseCase
	syncUseCase     *appbestseller.SyncUseCase
	tokenUseCase    *appauth.TokenUseCase
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(
	scheduleUseCase *appbackfill.ScheduleUseCase,
	syncUseCase *appbestseller.SyncUseCase,
	tokenUseCase *appauth.TokenUseCase,
) *AdminHandler {
	return &AdminHandler{
		scheduleUseCase: scheduleUseCase,
		syncUseCase:     syncUseCase,
		tokenUseCase:    tokenUseCase,
	}
}

// ScheduleBackfill 手动安排回填
// @Summary      安排回填
// @Description  入队后异步抓取；同一任务已在队列中时enqueued=false
// @Tags         运维
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.ScheduleBackfillRequest true "回填任务"
// @Success      202 {object} response.Response{data=appbackfill.ScheduleResponse}
// @Router       /api/v1/backfill [post]
func (h *AdminHandler) ScheduleBackfill(c *gin.Context) {
	var req dto.ScheduleBackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.scheduleUseCase.Execute(c.Request.Context(), appbackfill.ScheduleRequest{
		Source:   req.Source,
		SourceID: req.SourceID,
		Priority: req.Priority,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// SyncBestsellers 同步畅销榜
// @Summary      同步畅销榜
// @Description  两次同步之间有最小间隔，过早调用返回50029
// @Tags         运维
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.SyncBestsellersRequest false "榜单"
// @Success      200 {object} response.Response{data=appbestseller.SyncResponse}
// @Router       /api/v1/bestsellers/sync [post]
func (h *AdminHandler) SyncBestsellers(c *gin.Context) {
	var req dto.SyncBestsellersRequest
	// 请求体可以为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
			return
		}
	}

	result, err := h.syncUseCase.Execute(c.Request.Context(), appbestseller.SyncRequest{List: req.List})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// IssueToken 签发服务令牌
// @Summary      签发服务令牌
// @Tags         运维
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.IssueTokenRequest true "服务与权限"
// @Success      200 {object} response.Response{data=jwt.Issued}
// @Router       /api/v1/tokens [post]
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	issued, err := h.tokenUseCase.Issue(c.Request.Context(), appauth.IssueRequest{
		Service:  req.Service,
		Scopes:   req.Scopes,
		IssuedBy: middleware.GetService(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, issued)
}

// RevokeToken 吊销服务令牌
// @Summary      吊销服务令牌
// @Tags         运维
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.RevokeTokenRequest true "令牌ID"
// @Success      200 {object} response.Response
// @Router       /api/v1/tokens/revoke [post]
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	var req dto.RevokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	if err := h.tokenUseCase.Revoke(c.Request.Context(), req.TokenID, middleware.GetService(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"token_id": req.TokenID, "revoked": true})
}
