package notify

import (
	"context"
	"errors"
	"order_lifecycle/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// AudienceKind 通知对象类型
type AudienceKind string

const (
	AudienceCustomer     AudienceKind = "customer"
	AudienceProfessional AudienceKind = "professional"
	AudienceShop         AudienceKind = "shop"
	AudienceAdmin        AudienceKind = "admin"
)

// Audience 通知接收方，Ref 为空表示该类型的全体 (例如管理员)
type Audience struct {
	Kind AudienceKind `json:"kind"`
	Ref  string       `json:"ref,omitempty"`
}

// EventType 订单事件类型
type EventType string

const (
	EventOrderPlaced      EventType = "order.placed"
	EventStatusChanged    EventType = "order.status_changed"
	EventPaymentConfirmed EventType = "order.payment_confirmed"
	EventRefundProcessed  EventType = "order.refund_processed"
	EventComplaintRaised  EventType = "order.complaint_raised"
	EventPickupOTPIssued  EventType = "order.pickup_otp_issued"
)

// Event 订单事件
type Event struct {
	Type       EventType `json:"type"`
	OrderID    string    `json:"orderId"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier 通知渠道，发送失败只返回错误，由调用方决定是否重试
type Notifier interface {
	Notify(ctx context.Context, audience Audience, event Event) error
}

// Multi 依次调用所有渠道，一个渠道失败不影响其他渠道
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, audience Audience, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, audience, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Channels 把 Multi 展开成独立渠道并跳过 nil，调用方可按渠道分别重试
func Channels(n Notifier) []Notifier {
	m, ok := n.(Multi)
	if !ok {
		if n == nil {
			return nil
		}
		return []Notifier{n}
	}
	var out []Notifier
	for _, member := range m {
		out = append(out, Channels(member)...)
	}
	return out
}

// LogNotifier 只写日志，未配置推送渠道时使用
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, audience Audience, event Event) error {
	logger.Log.Info("order notification",
		zap.String("type", string(event.Type)),
		zap.String("order_id", event.OrderID),
		zap.String("audience", string(audience.Kind)),
		zap.String("ref", audience.Ref),
		zap.String("from", event.From),
		zap.String("to", event.To))
	return nil
}
