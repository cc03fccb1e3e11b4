package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// DetailCache 详情缓存删除
type DetailCache interface {
	Delete(ctx context.Context, bookID string) error
}

// CacheInvalidator book.upserted事件的缓存失效处理
type CacheInvalidator struct {
	details DetailCache
	logger  *zap.Logger
}

// NewCacheInvalidator 创建失效处理器
// 外部标识缓存只缓存只增不改的正向映射，不需要在这里失效
func NewCacheInvalidator(details DetailCache, logger *zap.Logger) *CacheInvalidator {
	return &CacheInvalidator{details: details, logger: logger}
}

// Handle 签名与mq.Handler一致
// 无法解析的消息记录后丢弃，返回错误只用于缓存故障（消息会重新入队）
func (h *CacheInvalidator) Handle(ctx context.Context, routingKey string, body []byte) error {
	if routingKey != book.EventTypeBookUpserted {
		return nil
	}
	ev, err := book.DecodeUpsertedEvent(body)
	if err != nil || ev.BookID == "" {
		h.logger.Warn("drop malformed book event", zap.String("routing_key", routingKey), zap.Error(err))
		return nil
	}

	if err := h.details.Delete(ctx, ev.BookID); err != nil {
		return err
	}

	h.logger.Debug("book caches invalidated", zap.String("book_id", ev.BookID), zap.Bool("is_new", ev.IsNew))
	return nil
}
