package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"order_lifecycle/internal/pkg/notify"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange 订单事件广播交换机
const DefaultExchange = "order_events"

// Channel amqp.Channel 中用到的方法
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message 投递到 MQ 的消息体
type Message struct {
	Audience notify.Audience `json:"audience"`
	Event    notify.Event    `json:"event"`
}

// Publisher 订单事件发布者，实现 notify.Notifier
type Publisher struct {
	open     func() (Channel, error)
	conn     *amqp.Connection
	exchange string

	mu       sync.Mutex
	declared bool
}

// Connect 连接 RabbitMQ
func Connect(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	p := NewPublisher(func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}, exchange)
	p.conn = conn
	return p, nil
}

// NewPublisher open 每次发布时打开一个新的 channel
func NewPublisher(open func() (Channel, error), exchange string) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{open: open, exchange: exchange}
}

func (p *Publisher) Notify(ctx context.Context, audience notify.Audience, event notify.Event) error {
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := p.declare(ch); err != nil {
		return err
	}

	body, err := json.Marshal(Message{Audience: audience, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         string(event.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) declare(ch Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if err := ch.ExchangeDeclare(p.exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.declared = true
	return nil
}

func (p *Publisher) Close() error {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
