package service

import (
	"context"
	"errors"
	"fmt"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/worker"
	"order_lifecycle/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Refunder 退款协作方，由支付模块实现
type Refunder interface {
	IssueRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// RefundRequest 退款请求，RefundNo 对同一订单固定，渠道据此去重
type RefundRequest struct {
	OrderID          string
	RefundNo         string
	Channel          string
	PaymentReference string
	Amount           decimal.Decimal
	Total            decimal.Decimal
	Reason           string
}

// RefundResult 渠道受理结果
type RefundResult struct {
	Reference string
}

var errNoRefunder = errors.New("refund collaborator is not configured")

// RefundNo 退款单号，重试时保持不变
func RefundNo(orderID string) string {
	return "RF" + orderID
}

// refundEligible 已支付，并且已取消待退款，或已完成且有未关闭的客诉
func refundEligible(o *model.Order) bool {
	if o.PaymentStatus != model.PaymentPaid || o.RefundStatus != model.RefundPending {
		return false
	}
	switch o.Status {
	case model.StatusCancelled:
		return true
	case model.StatusCompleted:
		return o.Complaint != nil && o.Complaint.Open
	}
	return false
}

func (e *orderEngine) RequestRefund(ctx context.Context, orderID string, actor model.Actor) (*model.Order, error) {
	order, err := e.load(ctx, orderID, "")
	if err != nil {
		return nil, err
	}

	// 已退款时重复调用为幂等成功
	if order.PaymentStatus == model.PaymentPaid && order.RefundStatus == model.RefundProcessed {
		e.metrics.RecordRefund("noop")
		return order, nil
	}
	if !refundEligible(order) {
		e.metrics.RecordRefund("rejected")
		return nil, model.NewOrderError(orderID, order.Status, "", model.ErrRefundNotAllowed)
	}

	req := refundRequestFor(order)
	ref, err := e.issueRefund(ctx, req)
	if err != nil {
		e.metrics.RecordRefund("pending_retry")
		e.metrics.RecordSideEffectFailure("refund")
		logger.Log.Warn("refund dispatch failed, scheduling retry",
			zap.String("order_id", orderID),
			zap.String("refund_no", req.RefundNo),
			zap.String("actor", actor.String()),
			zap.Error(err))
		if !errors.Is(err, errNoRefunder) {
			e.scheduleRefundRetry(req)
		}
		return order, model.NewOrderError(orderID, order.Status, "", fmt.Errorf("%w: %v", model.ErrRefundDispatchFailed, err))
	}

	updated, err := e.completeRefund(ctx, orderID, ref)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordRefund("processed")
	logger.Log.Info("refund processed",
		zap.String("order_id", orderID),
		zap.String("reference", ref),
		zap.String("actor", actor.String()))
	return updated, nil
}

func refundRequestFor(o *model.Order) RefundRequest {
	reason := "Order refund"
	if o.Cancellation != nil && o.Cancellation.Reason != "" {
		reason = o.Cancellation.Reason
	} else if o.Complaint != nil && o.Complaint.Reason != "" {
		reason = o.Complaint.Reason
	}
	return RefundRequest{
		OrderID:          o.ID,
		RefundNo:         RefundNo(o.ID),
		Channel:          o.PaymentChannel,
		PaymentReference: o.PaymentReference,
		Amount:           o.TotalAmount,
		Total:            o.TotalAmount,
		Reason:           reason,
	}
}

// issueRefund 单次同步调用，超时由 RefundTimeout 控制
func (e *orderEngine) issueRefund(ctx context.Context, req RefundRequest) (string, error) {
	refunder := e.getRefunder()
	if refunder == nil {
		return "", errNoRefunder
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.RefundTimeout)
	defer cancel()

	res, err := refunder.IssueRefund(ctx, req)
	if err != nil {
		return "", err
	}
	if res == nil || res.Reference == "" {
		return req.RefundNo, nil
	}
	return res.Reference, nil
}

// completeRefund 条件更新 Pending -> Processed，并发的第二次完成不会重复记账
func (e *orderEngine) completeRefund(ctx context.Context, orderID, reference string) (*model.Order, error) {
	changed, err := e.repo.MarkRefundProcessed(ctx, orderID, reference, e.now())
	if err != nil {
		return nil, fmt.Errorf("mark refund processed for order %s: %w", orderID, err)
	}
	order, err := e.load(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	if changed {
		e.notifyParties(order, notify.Event{
			Type:       notify.EventRefundProcessed,
			OrderID:    orderID,
			To:         string(model.RefundProcessed),
			Actor:      model.SystemActor.String(),
			OccurredAt: e.now(),
		})
	}
	return order, nil
}

// scheduleRefundRetry 提交到工作池按指数退避重试，成功前订单保持 Pending
func (e *orderEngine) scheduleRefundRetry(req RefundRequest) {
	task := worker.Task{
		Name:     "refund",
		Key:      req.OrderID,
		MaxRetry: e.opts.RefundMaxRetry,
		Run: func(ctx context.Context) error {
			order, err := e.repo.GetByID(ctx, req.OrderID)
			if err != nil {
				return err
			}
			if order.RefundStatus != model.RefundPending {
				return nil
			}
			ref, err := e.issueRefund(ctx, req)
			if err != nil {
				e.metrics.RecordSideEffectFailure("refund")
				return err
			}
			if _, err := e.completeRefund(ctx, req.OrderID, ref); err != nil {
				return err
			}
			e.metrics.RecordRefund("processed")
			logger.Log.Info("refund processed on retry", zap.String("order_id", req.OrderID), zap.String("reference", ref))
			return nil
		},
	}
	if e.dispatcher == nil || !e.dispatcher.Submit(task) {
		e.metrics.RecordSideEffectFailure("refund")
		logger.Log.Error("refund retry could not be queued, refund stays pending",
			zap.String("order_id", req.OrderID),
			zap.String("refund_no", req.RefundNo))
	}
}

// audiences 订单涉及的各方加上管理员
func audiences(o *model.Order) []notify.Audience {
	list := []notify.Audience{{Kind: notify.AudienceCustomer, Ref: o.CustomerRef}}
	if o.ShopRef != "" {
		list = append(list, notify.Audience{Kind: notify.AudienceShop, Ref: o.ShopRef})
	}
	if o.ProfessionalRef != "" {
		list = append(list, notify.Audience{Kind: notify.AudienceProfessional, Ref: o.ProfessionalRef})
	}
	return append(list, notify.Audience{Kind: notify.AudienceAdmin})
}

// notifyParties 提交后异步通知，每个渠道和接收方一个任务，重试只重发失败的渠道
func (e *orderEngine) notifyParties(o *model.Order, event notify.Event) {
	if e.dispatcher == nil {
		return
	}
	channels := notify.Channels(e.notifier)
	for _, audience := range audiences(o) {
		for _, channel := range channels {
			channelName := fmt.Sprintf("%T", channel)
			task := worker.Task{
				Name: "notify",
				Key:  o.ID,
				Run: func(ctx context.Context) error {
					if err := channel.Notify(ctx, audience, event); err != nil {
						e.metrics.RecordSideEffectFailure("notification")
						logger.Log.Warn(model.ErrNotificationDispatchFailed.Error(),
							zap.String("order_id", event.OrderID),
							zap.String("event", string(event.Type)),
							zap.String("audience", string(audience.Kind)),
							zap.String("channel", channelName),
							zap.Error(err))
						return err
					}
					return nil
				},
			}
			if !e.dispatcher.Submit(task) {
				e.metrics.RecordSideEffectFailure("notification")
				logger.Log.Warn(model.ErrNotificationDispatchFailed.Error(),
					zap.String("order_id", event.OrderID),
					zap.String("event", string(event.Type)),
					zap.String("audience", string(audience.Kind)),
					zap.String("channel", channelName),
					zap.String("cause", "queue full"))
			}
		}
	}
}
