package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
)

type memRevoker struct {
	revoked map[string]time.Duration
}

func (r *memRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	r.revoked[tokenID] = ttl
	return nil
}

func TestTokenUseCase_Issue(t *testing.T) {
	manager := jwt.NewManager("secret", time.Hour, "bookcatalog")
	uc := NewTokenUseCase(manager, nil, time.Hour, zap.NewNop())

	issued, err := uc.Issue(context.Background(), IssueRequest{
		Service: "crawler",
		Scopes:  []string{jwt.ScopeIngest, jwt.ScopeIngest, jwt.ScopeBackfill},
	})
	require.NoError(t, err)

	claims, err := manager.ParseToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "crawler", claims.Service)
	assert.Equal(t, []string{jwt.ScopeIngest, jwt.ScopeBackfill}, claims.Scopes, "重复scope去重")
	assert.Equal(t, issued.TokenID, claims.ID)

	_, err = uc.Issue(context.Background(), IssueRequest{Service: "crawler", Scopes: []string{"catalog:delete"}})
	assert.Equal(t, apperrors.ErrCodeInvalidParams, apperrors.CodeOf(err))

	_, err = uc.Issue(context.Background(), IssueRequest{Service: "crawler"})
	assert.Equal(t, apperrors.ErrCodeInvalidParams, apperrors.CodeOf(err))

	_, err = uc.Issue(context.Background(), IssueRequest{Service: " ", Scopes: []string{jwt.ScopeSync}})
	assert.Equal(t, apperrors.ErrCodeInvalidParams, apperrors.CodeOf(err), "服务名不能为空")
}

func TestTokenUseCase_Revoke(t *testing.T) {
	manager := jwt.NewManager("secret", time.Hour, "bookcatalog")
	revoker := &memRevoker{revoked: map[string]time.Duration{}}
	uc := NewTokenUseCase(manager, revoker, 24*time.Hour, zap.NewNop())

	require.NoError(t, uc.Revoke(context.Background(), "jti-1", "ops"))
	assert.Equal(t, 24*time.Hour, revoker.revoked["jti-1"])

	assert.Equal(t, apperrors.ErrCodeInvalidParams, apperrors.CodeOf(uc.Revoke(context.Background(), "", "ops")))

	noStore := NewTokenUseCase(manager, nil, time.Hour, zap.NewNop())
	assert.Equal(t, apperrors.ErrCodeRedisError, apperrors.CodeOf(noStore.Revoke(context.Background(), "jti-1", "ops")))
}
