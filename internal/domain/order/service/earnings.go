package service

import (
	"order_lifecycle/internal/domain/order/model"

	"github.com/shopspring/decimal"
)

// SplitEarnings 平台抽成 round(total × rate, 2)，余额按订单类型记给商家或服务者
func SplitEarnings(o *model.Order, rate decimal.Decimal) *model.Earnings {
	commission := o.TotalAmount.Mul(rate).Round(2)
	remainder := o.TotalAmount.Sub(commission)

	e := &model.Earnings{
		Rate:               rate,
		PlatformCommission: commission,
		ShopShare:          decimal.Zero,
		ProfessionalShare:  decimal.Zero,
	}
	switch o.OrderType {
	case model.OrderTypeMaterial:
		e.ShopShare = remainder
		e.CreditedTo = o.ShopRef
	case model.OrderTypeService:
		e.ProfessionalShare = remainder
		e.CreditedTo = o.ProfessionalRef
	}
	return e
}
