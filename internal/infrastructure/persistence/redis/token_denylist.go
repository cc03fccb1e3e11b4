package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

// TokenDenylist 服务令牌吊销列表
// JWT是无状态的，服务端只能通过吊销列表让令牌提前失效
// Key格式：catalog:revoked:{token_id}，过期时间与令牌剩余有效期一致
type TokenDenylist struct {
	client *redis.Client
}

// NewTokenDenylist 创建吊销列表
func NewTokenDenylist(client *redis.Client) *TokenDenylist {
	return &TokenDenylist{client: client}
}

// Revoke 吊销令牌，ttl<=0时不写入（令牌已经过期）
func (d *TokenDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, revokedKey(tokenID), "revoked", ttl).Err(); err != nil {
		return apperrors.WrapCode(err, apperrors.ErrCodeRedisError, "吊销令牌失败")
	}
	return nil
}

// IsRevoked 令牌是否已被吊销
func (d *TokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, apperrors.WrapCode(err, apperrors.ErrCodeRedisError, "检查吊销列表失败")
	}
	return n > 0, nil
}

func revokedKey(tokenID string) string {
	return "catalog:revoked:" + tokenID
}
