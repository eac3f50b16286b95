package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"order_lifecycle/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
)

// alipayClient 策略依赖的 alipay.Client 方法
type alipayClient interface {
	TradeAppPay(param alipay.TradeAppPay) (string, error)
	DecodeNotification(values url.Values) (*alipay.Notification, error)
	TradeRefund(param alipay.TradeRefund) (*alipay.TradeRefundRsp, error)
}

type AlipayStrategy struct {
	client alipayClient
	config config.AlipayConfig
}

func NewAlipayStrategy(cfg config.AlipayConfig) (*AlipayStrategy, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay config missing")
	}

	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction)
	if err != nil {
		return nil, err
	}

	// 加载支付宝公钥 (用于验证签名)
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, err
	}

	return &AlipayStrategy{
		client: client,
		config: cfg,
	}, nil
}

// Pay 发起支付 (App支付)
func (s *AlipayStrategy) Pay(ctx context.Context, tradeNo string, amount decimal.Decimal, subject string) (string, error) {
	p := alipay.TradeAppPay{}
	p.NotifyURL = s.config.NotifyURL
	p.Subject = subject
	p.OutTradeNo = tradeNo
	p.TotalAmount = amount.StringFixed(2)
	p.ProductCode = "QUICK_MSECURITY_PAY" // App支付产品码

	// 生成签名后的参数字符串
	return s.client.TradeAppPay(p)
}

// Notify 处理回调
func (s *AlipayStrategy) Notify(ctx context.Context, params interface{}) (*NotifyResult, error) {
	// params 预期是 url.Values (gin context.Request.Form)
	values, ok := params.(url.Values)
	if !ok {
		return nil, errors.New("invalid params type, expected url.Values")
	}

	// 1. 验证签名
	noti, err := s.client.DecodeNotification(values)
	if err != nil {
		return nil, err
	}

	// 2. 解析金额
	amount, err := decimal.NewFromString(noti.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse alipay amount %q: %w", noti.TotalAmount, err)
	}

	// TRADE_SUCCESS 或 TRADE_FINISHED 表示成功
	return &NotifyResult{
		TradeNo:    noti.OutTradeNo,
		ChannelRef: noti.TradeNo,
		Amount:     amount,
		Success:    noti.TradeStatus == alipay.TradeStatusSuccess || noti.TradeStatus == alipay.TradeStatusFinished,
	}, nil
}

// Refund 统一收单交易退款，OutRequestNo 固定为退款单号，重复请求不会重复退款
func (s *AlipayStrategy) Refund(ctx context.Context, p RefundParams) (string, error) {
	param := alipay.TradeRefund{}
	param.OutTradeNo = p.TradeNo
	param.RefundAmount = p.Amount.StringFixed(2)
	param.RefundReason = p.Reason
	param.OutRequestNo = p.RefundNo

	rsp, err := s.client.TradeRefund(param)
	if err != nil {
		return "", err
	}
	if rsp.Code != alipay.CodeSuccess {
		return "", fmt.Errorf("alipay refund %s: %s %s", p.RefundNo, rsp.SubCode, rsp.SubMsg)
	}
	return p.RefundNo, nil
}

// 确保实现了接口
var _ PaymentStrategy = (*AlipayStrategy)(nil)
