// Package auth 服务令牌的签发与吊销
package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
)

// KnownScopes 可签发的scope
var KnownScopes = []string{jwt.ScopeIngest, jwt.ScopeBackfill, jwt.ScopeSync, jwt.ScopeAdmin}

// Revoker 令牌吊销存储
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// TokenUseCase 服务令牌用例
// 设计说明：
// 1. 只有持有admin scope的调用方能签发和吊销（由路由中间件保证）
// 2. 吊销记录的有效期等于令牌最长有效期，过期后令牌本身也失效
// 3. revoker为nil时（未启用Redis）吊销返回错误，签发不受影响
type TokenUseCase struct {
	jwtManager *jwt.Manager
	revoker    Revoker
	maxTTL     time.Duration
	logger     *zap.Logger
}

// NewTokenUseCase 创建令牌用例
func NewTokenUseCase(jwtManager *jwt.Manager, revoker Revoker, maxTTL time.Duration, logger *zap.Logger) *TokenUseCase {
	return &TokenUseCase{
		jwtManager: jwtManager,
		revoker:    revoker,
		maxTTL:     maxTTL,
		logger:     logger,
	}
}

// IssueRequest 签发请求
type IssueRequest struct {
	Service  string   // 调用方服务名，如crawler、ops-console
	Scopes   []string // 为空时拒绝
	IssuedBy string   // 签发者服务名（从认证中间件获取）
}

// Issue 签发令牌
func (uc *TokenUseCase) Issue(ctx context.Context, req IssueRequest) (*jwt.Issued, error) {
	// 1. 校验scope
	service := strings.TrimSpace(req.Service)
	if len(req.Scopes) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "scopes不能为空")
	}
	scopes := make([]string, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		if !slices.Contains(KnownScopes, s) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "未知的scope: "+s)
		}
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}

	// 2. 签发
	issued, err := uc.jwtManager.GenerateToken(service, scopes)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("service token issued",
		zap.String("service", service),
		zap.Strings("scopes", scopes),
		zap.String("token_id", issued.TokenID),
		zap.String("issued_by", req.IssuedBy))
	return issued, nil
}

// Revoke 吊销令牌（按令牌ID）
func (uc *TokenUseCase) Revoke(ctx context.Context, tokenID, revokedBy string) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidParams, "token_id不能为空")
	}
	if uc.revoker == nil {
		return apperrors.New(apperrors.ErrCodeRedisError, "未启用令牌吊销存储")
	}
	if err := uc.revoker.Revoke(ctx, tokenID, uc.maxTTL); err != nil {
		return err
	}
	uc.logger.Info("service token revoked", zap.String("token_id", tokenID), zap.String("revoked_by", revokedBy))
	return nil
}
