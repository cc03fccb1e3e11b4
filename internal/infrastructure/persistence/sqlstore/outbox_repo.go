package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// OutboxStore 事件发件箱
// Append在upsert事务内写入；FetchPending/MarkPublished/MarkFailed由投递器在事务外调用
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore 创建发件箱仓储
func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

var _ book.OutboxRepository = (*OutboxStore)(nil)

// Append 写入一条待投递事件
func (s *OutboxStore) Append(ctx context.Context, e *book.OutboxEvent) error {
	model := &OutboxEventModel{
		ID:          e.ID,
		AggregateID: e.AggregateID,
		EventType:   e.EventType,
		Payload:     string(e.Payload),
		CreatedAt:   e.CreatedAt,
	}
	if err := conn(ctx, s.db).Create(model).Error; err != nil {
		return dbError(err, "写入事件失败")
	}
	return nil
}

// FetchPending 按写入顺序取出未投递、未超过重试上限的事件
func (s *OutboxStore) FetchPending(ctx context.Context, limit, maxAttempts int) ([]*book.OutboxEvent, error) {
	var models []OutboxEventModel
	err := conn(ctx, s.db).
		Where("published_at IS NULL AND attempts < ?", maxAttempts).
		Order("id").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, dbError(err, "查询待投递事件失败")
	}
	events := make([]*book.OutboxEvent, 0, len(models))
	for _, m := range models {
		events = append(events, &book.OutboxEvent{
			ID:          m.ID,
			AggregateID: m.AggregateID,
			EventType:   m.EventType,
			Payload:     []byte(m.Payload),
			Attempts:    m.Attempts,
			CreatedAt:   m.CreatedAt,
		})
	}
	return events, nil
}

// MarkPublished 标记投递成功
func (s *OutboxStore) MarkPublished(ctx context.Context, id string, at time.Time) error {
	err := conn(ctx, s.db).Model(&OutboxEventModel{}).
		Where("id = ?", id).
		Update("published_at", at).Error
	if err != nil {
		return dbError(err, "更新事件状态失败")
	}
	return nil
}

// MarkFailed 记录一次投递失败
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	err := conn(ctx, s.db).Model(&OutboxEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": msg,
		}).Error
	if err != nil {
		return dbError(err, "更新事件状态失败")
	}
	return nil
}
