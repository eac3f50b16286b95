package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	orderModel "order_lifecycle/internal/domain/order/model"
	orderService "order_lifecycle/internal/domain/order/service"
	"order_lifecycle/internal/domain/payment/model"
	"order_lifecycle/internal/domain/payment/repository"
	"order_lifecycle/internal/domain/payment/strategy"
	"order_lifecycle/pkg/logger"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedChannel = errors.New("unsupported payment channel")
	ErrOrderNotPayable    = errors.New("order is not payable")
	ErrAmountMismatch     = errors.New("notified amount does not match transaction")
)

// OrderGateway 支付模块对订单引擎的依赖
type OrderGateway interface {
	GetOrder(ctx context.Context, orderID string) (*orderModel.Order, error)
	ConfirmPayment(ctx context.Context, req orderService.PaymentConfirmation) (*orderModel.Order, error)
}

type PaymentService interface {
	// Pay 为订单创建支付流水并返回渠道支付参数
	Pay(ctx context.Context, orderID, channel string) (*model.Transaction, string, error)
	HandleNotify(ctx context.Context, channel string, params interface{}) error
	RegisterStrategy(channel string, strategy strategy.PaymentStrategy)
	// IssueRefund 通过原支付渠道退款，供订单引擎调用
	IssueRefund(ctx context.Context, req orderService.RefundRequest) (*orderService.RefundResult, error)
}

type paymentService struct {
	repo   repository.PaymentRepository
	orders OrderGateway

	mu         sync.RWMutex
	strategies map[string]strategy.PaymentStrategy
	now        func() time.Time
}

func NewPaymentService(repo repository.PaymentRepository, orders OrderGateway) PaymentService {
	return &paymentService{
		repo:       repo,
		orders:     orders,
		strategies: make(map[string]strategy.PaymentStrategy),
		now:        time.Now,
	}
}

// RegisterStrategy 注册支付策略
func (s *paymentService) RegisterStrategy(channel string, strategy strategy.PaymentStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[channel] = strategy
}

func (s *paymentService) strategy(channel string) (strategy.PaymentStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
	return st, nil
}

// NewTradeNo 商户交易号，每次支付尝试不同
func NewTradeNo(orderID string) string {
	return fmt.Sprintf("%s%s", orderID, strings.ToUpper(uuid.New().String()[:8]))
}

func (s *paymentService) Pay(ctx context.Context, orderID, channel string) (*model.Transaction, string, error) {
	st, err := s.strategy(channel)
	if err != nil {
		return nil, "", err
	}

	// 1. 校验订单
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.PaymentStatus == orderModel.PaymentPaid {
		return nil, "", fmt.Errorf("%w: order %s is already paid", ErrOrderNotPayable, orderID)
	}
	if order.Status == orderModel.StatusCancelled {
		return nil, "", fmt.Errorf("%w: order %s is cancelled", ErrOrderNotPayable, orderID)
	}

	// 2. 创建支付流水
	txn := &model.Transaction{
		TradeNo: NewTradeNo(orderID),
		OrderID: orderID,
		Amount:  order.TotalAmount,
		Status:  model.StatusPending,
		Channel: channel,
		Subject: fmt.Sprintf("Order %s", orderID),
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, "", err
	}

	// 3. 调用支付策略获取支付参数
	payParam, err := st.Pay(ctx, txn.TradeNo, txn.Amount, txn.Subject)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("payment initiated",
		zap.String("order_id", orderID),
		zap.String("trade_no", txn.TradeNo),
		zap.String("channel", channel))
	return txn, payParam, nil
}

func (s *paymentService) HandleNotify(ctx context.Context, channel string, params interface{}) error {
	st, err := s.strategy(channel)
	if err != nil {
		return err
	}

	// 1. 验签并解析回调参数
	res, err := st.Notify(ctx, params)
	if err != nil {
		return err
	}

	txn, err := s.repo.GetByTradeNo(ctx, res.TradeNo)
	if err != nil {
		return err
	}
	if res.Success && !res.Amount.Equal(txn.Amount) {
		return fmt.Errorf("%w: trade %s notified %s, expected %s", ErrAmountMismatch, res.TradeNo, res.Amount, txn.Amount)
	}

	// 2. 更新流水，渠道重复回调时流水已不是 pending
	status := model.StatusFailed
	var paidAt *time.Time
	if res.Success {
		now := s.now()
		status = model.StatusPaid
		paidAt = &now
	}
	extraJSON, _ := json.Marshal(params)
	if _, ok := params.(*http.Request); ok {
		extraJSON = nil
	}
	if _, err := s.repo.MarkResult(ctx, res.TradeNo, status, res.ChannelRef, paidAt, extraJSON); err != nil {
		return err
	}

	// 3. 通知订单引擎，引擎侧幂等
	confirm := orderService.PaymentConfirmation{
		OrderID:   txn.OrderID,
		Status:    orderModel.PaymentFailed,
		Channel:   channel,
		Reference: res.ChannelRef,
	}
	if res.Success {
		confirm.Status = orderModel.PaymentPaid
		confirm.PaidAt = *paidAt
	}
	if confirm.Reference == "" {
		confirm.Reference = res.TradeNo
	}
	if _, err := s.orders.ConfirmPayment(ctx, confirm); err != nil {
		return err
	}

	logger.Log.Info("payment notification handled",
		zap.String("order_id", txn.OrderID),
		zap.String("trade_no", res.TradeNo),
		zap.String("status", status))
	return nil
}

func (s *paymentService) IssueRefund(ctx context.Context, req orderService.RefundRequest) (*orderService.RefundResult, error) {
	txn, err := s.repo.GetPaidByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("find paid transaction for order %s: %w", req.OrderID, err)
	}
	// 已退款的流水直接返回之前的结果
	if txn.Status == model.StatusRefunded && txn.RefundNo == req.RefundNo {
		return &orderService.RefundResult{Reference: txn.RefundRef}, nil
	}

	st, err := s.strategy(txn.Channel)
	if err != nil {
		return nil, err
	}
	ref, err := st.Refund(ctx, strategy.RefundParams{
		TradeNo:  txn.TradeNo,
		RefundNo: req.RefundNo,
		Amount:   req.Amount,
		Total:    txn.Amount,
		Reason:   req.Reason,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkRefunded(ctx, txn.ID, req.RefundNo, ref, s.now()); err != nil {
		// 渠道已受理，流水状态稍后可对账修复
		logger.Log.Error("mark transaction refunded",
			zap.String("order_id", req.OrderID),
			zap.String("trade_no", txn.TradeNo),
			zap.Error(err))
	}
	return &orderService.RefundResult{Reference: ref}, nil
}

var _ orderService.Refunder = (PaymentService)(nil)
