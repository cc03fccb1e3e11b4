package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// ExternalIDCache 外部标识索引的旁路缓存
// 设计说明：
// 1. 只缓存命中的正向查询：映射只插入不更新，命中结果不会过期失效
// 2. 未命中不缓存，否则新写入的映射要等TTL过期才可见
// 3. 反向查询不缓存：图书会持续新增映射，缓存只能靠事件失效，消息队列关闭时会读到旧数据
// 4. Redis出错只记日志，退回底层索引
//
// Key格式：catalog:extid:{source}:{external_id} → book_id
type ExternalIDCache struct {
	client *redis.Client
	next   book.ExternalIDIndex
	ttl    time.Duration
	logger *zap.Logger
}

// NewExternalIDCache 包装底层索引
func NewExternalIDCache(client *redis.Client, next book.ExternalIDIndex, ttl time.Duration, logger *zap.Logger) *ExternalIDCache {
	return &ExternalIDCache{client: client, next: next, ttl: ttl, logger: logger}
}

var _ book.ExternalIDIndex = (*ExternalIDCache)(nil)

// Resolve (source, externalId) → bookId
func (c *ExternalIDCache) Resolve(ctx context.Context, source, externalID string) (string, bool, error) {
	key := forwardKey(source, externalID)

	id, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("external id cache read failed", zap.String("key", key), zap.Error(err))
	}

	id, ok, err := c.next.Resolve(ctx, source, externalID)
	if err != nil || !ok {
		return id, ok, err
	}
	if err := c.client.Set(ctx, key, id, c.ttl).Err(); err != nil {
		c.logger.Warn("external id cache write failed", zap.String("key", key), zap.Error(err))
	}
	return id, true, nil
}

// Reverse bookId → {source: externalId}，直接读底层索引
func (c *ExternalIDCache) Reverse(ctx context.Context, bookID string) (map[string]string, error) {
	return c.next.Reverse(ctx, bookID)
}

func forwardKey(source, externalID string) string {
	return fmt.Sprintf("catalog:extid:%s:%s", source, externalID)
}
