package mq

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildPublishing(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	raw := json.RawMessage(`{"book_id":"0190a1b2"}`)
	msg, err := buildPublishing(raw, now)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), msg.Body, "RawMessage应原样发送")
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, now, msg.Timestamp)

	msg, err = buildPublishing(map[string]bool{"is_new": true}, now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_new":true}`, string(msg.Body))

	_, err = buildPublishing(make(chan int), now)
	assert.Error(t, err, "无法序列化的消息应返回错误")
}

// TestPublishConsume_RoundTrip 需要真实RabbitMQ，通过BOOKCATALOG_TEST_AMQP_URL开启
func TestPublishConsume_RoundTrip(t *testing.T) {
	url := os.Getenv("BOOKCATALOG_TEST_AMQP_URL")
	if url == "" {
		t.Skip("未设置BOOKCATALOG_TEST_AMQP_URL，跳过RabbitMQ集成测试")
	}
	logger := zap.NewNop()

	consumer, err := NewConsumer(url, "catalog.test.events", "topic", "catalog.test.queue", []string{"book.*"}, logger)
	require.NoError(t, err)
	defer consumer.Close()

	publisher, err := NewPublisher(url, "catalog.test.events", "topic", logger)
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.Publish(context.Background(), "book.upserted", map[string]string{"book_id": "abc"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = consumer.Consume(ctx, func(_ context.Context, key string, body []byte) error {
			received <- key + " " + string(body)
			return nil
		})
	}()

	select {
	case got := <-received:
		assert.Equal(t, `book.upserted {"book_id":"abc"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("超时未收到消息")
	}
}
