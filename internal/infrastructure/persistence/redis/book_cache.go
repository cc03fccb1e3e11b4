package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// BookCache 图书详情缓存（Cache-Aside）
// 更新数据库后删除缓存，不更新缓存：并发更新时删除简单可靠
type BookCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBookCache 创建详情缓存
func NewBookCache(client *redis.Client, ttl time.Duration) *BookCache {
	return &BookCache{client: client, ttl: ttl}
}

// Get 未命中返回(nil, nil)
func (c *BookCache) Get(ctx context.Context, bookID string) (*book.Book, error) {
	val, err := c.client.Get(ctx, detailKey(bookID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("获取缓存失败: %w", err)
	}

	var b book.Book
	if err := json.Unmarshal(val, &b); err != nil {
		return nil, fmt.Errorf("反序列化失败: %w", err)
	}
	return &b, nil
}

// Set 写入详情缓存
func (c *BookCache) Set(ctx context.Context, b *book.Book) error {
	val, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	if err := c.client.Set(ctx, detailKey(b.ID), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("设置缓存失败: %w", err)
	}
	return nil
}

// Delete 删除详情缓存
func (c *BookCache) Delete(ctx context.Context, bookID string) error {
	if err := c.client.Del(ctx, detailKey(bookID)).Err(); err != nil {
		return fmt.Errorf("删除缓存失败: %w", err)
	}
	return nil
}

// detailKey 格式：catalog:detail:{book_id}
func detailKey(bookID string) string {
	return "catalog:detail:" + bookID
}
