package strategy

import (
	"context"

	"github.com/shopspring/decimal"
)

// NotifyResult 回调解析结果
type NotifyResult struct {
	TradeNo    string
	ChannelRef string
	Amount     decimal.Decimal
	Success    bool
}

// RefundParams 退款参数，RefundNo 相同的请求由渠道去重
type RefundParams struct {
	TradeNo  string
	RefundNo string
	Amount   decimal.Decimal
	Total    decimal.Decimal
	Reason   string
}

type PaymentStrategy interface {
	// Pay 发起支付，返回支付参数（如 URL、JSON 串）
	Pay(ctx context.Context, tradeNo string, amount decimal.Decimal, subject string) (string, error)

	// Notify 处理回调通知，验签后返回交易号、金额、支付状态
	Notify(ctx context.Context, params interface{}) (*NotifyResult, error)

	// Refund 原路退款，返回渠道退款单号
	Refund(ctx context.Context, p RefundParams) (string, error)
}

// toFen 元转分
func toFen(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromFen 分转元
func fromFen(fen int64) decimal.Decimal {
	return decimal.New(fen, -2)
}
