package book

import (
	"encoding/json"
	"time"
)

// EventTypeBookUpserted upsert事件类型，同时作为MQ路由键
const EventTypeBookUpserted = "book.upserted"

// UpsertedEvent 每次upsert恰好产生一条，作为事务内最后一次写入
type UpsertedEvent struct {
	EventID    string            `json:"event_id"`
	BookID     string            `json:"book_id"`
	Slug       string            `json:"slug"`
	IsNew      bool              `json:"is_new"`
	Source     string            `json:"source"`
	ImageURL   string            `json:"canonical_image_url,omitempty"`
	ImageLinks map[string]string `json:"image_links"`
	ClusterID  string            `json:"cluster_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ToOutbox 序列化为发件箱记录
func (e *UpsertedEvent) ToOutbox() (*OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          e.EventID,
		AggregateID: e.BookID,
		EventType:   EventTypeBookUpserted,
		Payload:     payload,
		CreatedAt:   e.OccurredAt,
	}, nil
}

// DecodeUpsertedEvent 消费端反序列化
func DecodeUpsertedEvent(body []byte) (*UpsertedEvent, error) {
	var e UpsertedEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
