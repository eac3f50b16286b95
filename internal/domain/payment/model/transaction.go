package model

import (
	"encoding/json"
	baseModel "order_lifecycle/pkg/model"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction 支付流水，一个订单可以有多次支付尝试，最多一次成功
type Transaction struct {
	baseModel.BaseModel
	TradeNo     string          `gorm:"type:varchar(64);unique;not null" json:"tradeNo"` // 发给渠道的商户交易号
	OrderID     string          `gorm:"type:varchar(32);index;not null" json:"orderId"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status      string          `gorm:"type:varchar(20);default:'pending'" json:"status"` // pending, paid, failed, refunded
	Channel     string          `gorm:"type:varchar(20)" json:"channel"`                  // alipay, wechat
	Subject     string          `json:"subject"`
	ChannelRef  string          `gorm:"type:varchar(64)" json:"channelRef,omitempty"` // 渠道交易号
	ExtraParams json.RawMessage `gorm:"type:jsonb" json:"extraParams,omitempty"`
	PaidAt      *time.Time      `json:"paidAt,omitempty"`
	RefundNo    string          `gorm:"type:varchar(64)" json:"refundNo,omitempty"`
	RefundRef   string          `gorm:"type:varchar(64)" json:"refundRef,omitempty"`
	RefundedAt  *time.Time      `json:"refundedAt,omitempty"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}

const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"

	ChannelAlipay = "alipay"
	ChannelWechat = "wechat"
)
