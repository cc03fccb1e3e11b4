// Package mq 基于RabbitMQ的事件发布/订阅
//
// 图书事件统一发到topic类型的Exchange（默认catalog.events），
// 路由键形如 book.upserted，消费方按需绑定 book.* 等通配规则。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/pkg/metrics"
)

// Publisher 消息发布者
// amqp.Channel不是并发安全的，Publish内部加锁串行化
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher 连接RabbitMQ并声明持久化Exchange
func NewPublisher(url, exchange, exchangeType string, logger *zap.Logger) (*Publisher, error) {
	conn, channel, err := dial(url, exchange, exchangeType)
	if err != nil {
		return nil, err
	}

	logger.Info("mq publisher ready", zap.String("exchange", exchange), zap.String("type", exchangeType))
	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish 发布消息，MessageId随机生成
// message为[]byte或json.RawMessage时原样发送，其它类型序列化为JSON
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	return p.PublishWithID(ctx, routingKey, uuid.NewString(), message)
}

// PublishWithID 指定MessageId发布，消费方可据此去重
func (p *Publisher) PublishWithID(ctx context.Context, routingKey, messageID string, message interface{}) error {
	msg, err := buildPublishing(message, time.Now())
	if err != nil {
		return err
	}
	msg.MessageId = messageID

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}

	metrics.IncMessagePublished(p.exchange, routingKey)
	p.logger.Debug("message published", zap.String("routing_key", routingKey), zap.String("message_id", msg.MessageId))
	return nil
}

// Close 关闭发布者
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	closeAll(p.channel, p.conn)
	return nil
}

// buildPublishing 构造持久化的JSON消息
func buildPublishing(message interface{}, now time.Time) (amqp.Publishing, error) {
	var body []byte
	switch m := message.(type) {
	case []byte:
		body = m
	case json.RawMessage:
		body = m
	default:
		b, err := json.Marshal(message)
		if err != nil {
			return amqp.Publishing{}, fmt.Errorf("消息序列化失败: %w", err)
		}
		body = b
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
	}, nil
}

// Handler 消息处理函数，返回错误时消息重新入队
type Handler func(ctx context.Context, routingKey string, body []byte) error

// Consumer 消息消费者
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
}

// NewConsumer 声明持久化队列并按routingKeys绑定到Exchange
func NewConsumer(url, exchange, exchangeType, queue string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, channel, err := dial(url, exchange, exchangeType)
	if err != nil {
		return nil, err
	}

	q, err := channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		closeAll(channel, conn)
		return nil, fmt.Errorf("声明Queue失败: %w", err)
	}

	for _, key := range routingKeys {
		if err := channel.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			closeAll(channel, conn)
			return nil, fmt.Errorf("绑定Queue失败: %w", err)
		}
	}

	logger.Info("mq consumer ready", zap.String("queue", q.Name), zap.Strings("routing_keys", routingKeys))
	return &Consumer{conn: conn, channel: channel, queue: q.Name, logger: logger}, nil
}

// Consume 阻塞消费直到ctx取消
// 手动Ack；handler失败时Nack并重新入队
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("设置Qos失败: %w", err)
	}

	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("开始消费失败: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("消息Channel已关闭")
			}
			if err := handler(ctx, msg.RoutingKey, msg.Body); err != nil {
				c.logger.Warn("message handling failed, requeue",
					zap.String("queue", c.queue),
					zap.String("routing_key", msg.RoutingKey),
					zap.Error(err))
				metrics.IncMessageConsumed(c.queue, "failure")
				_ = msg.Nack(false, true)
				continue
			}
			metrics.IncMessageConsumed(c.queue, "success")
			_ = msg.Ack(false)
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	closeAll(c.channel, c.conn)
	return nil
}

func dial(url, exchange, exchangeType string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("创建Channel失败: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
		closeAll(channel, conn)
		return nil, nil, fmt.Errorf("声明Exchange失败: %w", err)
	}
	return conn, channel, nil
}

func closeAll(channel *amqp.Channel, conn *amqp.Connection) {
	if channel != nil {
		_ = channel.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
