package push

import (
	"context"
	"encoding/json"
	"fmt"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/internal/pkg/notify"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
)

type PushService interface {
	PushToAccount(accountID string, title, body string, extParameters map[string]string) error
	PushToTag(tag string, title, body string, extParameters map[string]string) error
}

// AdminTag 管理后台设备绑定的推送标签
const AdminTag = "admin"

type AliyunPushService struct {
	client *push.Client
	appKey int64
}

func NewAliyunPushService(cfg config.PushConfig) (*AliyunPushService, error) {
	// 未配置推送时由调用方降级为日志通知
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, fmt.Errorf("push config is missing")
	}

	client, err := push.NewClientWithAccessKey(
		cfg.RegionID,
		cfg.AccessKeyID,
		cfg.AccessKeySecret,
	)
	if err != nil {
		return nil, err
	}

	return &AliyunPushService{
		client: client,
		appKey: cfg.AppKey,
	}, nil
}

func (s *AliyunPushService) PushToAccount(accountID string, title, body string, extParameters map[string]string) error {
	return s.sendPush("ACCOUNT", accountID, title, body, extParameters)
}

func (s *AliyunPushService) PushToTag(tag string, title, body string, extParameters map[string]string) error {
	return s.sendPush("TAG", tag, title, body, extParameters)
}

func (s *AliyunPushService) sendPush(target, targetValue, title, body string, extParameters map[string]string) error {
	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(s.appKey))
	request.Target = target
	request.TargetValue = targetValue
	request.Title = title
	request.Body = body
	request.DeviceType = "ALL"  // iOS & Android
	request.PushType = "NOTICE" // 通知

	// 扩展参数 (JSON 序列化)
	if len(extParameters) > 0 {
		extJSON, _ := json.Marshal(extParameters)
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	_, err := s.client.Push(request)
	return err
}

// Notifier 把订单事件转换为移动推送
type Notifier struct {
	svc PushService
}

func NewNotifier(svc PushService) *Notifier {
	return &Notifier{svc: svc}
}

func (n *Notifier) Notify(ctx context.Context, audience notify.Audience, event notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	title, body := Message(event)
	ext := map[string]string{
		"orderId": event.OrderID,
		"event":   string(event.Type),
		"status":  event.To,
	}

	if audience.Kind == notify.AudienceAdmin || audience.Ref == "" {
		return n.svc.PushToTag(AdminTag, title, body, ext)
	}
	return n.svc.PushToAccount(audience.Ref, title, body, ext)
}

// Message 推送标题与正文
func Message(event notify.Event) (string, string) {
	switch event.Type {
	case notify.EventOrderPlaced:
		return "New order", fmt.Sprintf("Order %s has been placed", event.OrderID)
	case notify.EventStatusChanged:
		return "Order update", fmt.Sprintf("Order %s is now %s", event.OrderID, event.To)
	case notify.EventPaymentConfirmed:
		return "Payment update", fmt.Sprintf("Payment for order %s: %s", event.OrderID, event.To)
	case notify.EventRefundProcessed:
		return "Refund processed", fmt.Sprintf("Refund for order %s has been processed", event.OrderID)
	case notify.EventComplaintRaised:
		return "Complaint raised", fmt.Sprintf("A complaint was raised on order %s", event.OrderID)
	case notify.EventPickupOTPIssued:
		return "Pickup code", fmt.Sprintf("A new pickup code was issued for order %s", event.OrderID)
	}
	return "Order update", fmt.Sprintf("Order %s changed", event.OrderID)
}
