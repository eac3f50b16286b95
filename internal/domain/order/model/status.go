package model

import "strings"

// Status 订单状态
type Status string

const (
	StatusPending        Status = "Pending"
	StatusAccepted       Status = "Accepted"
	StatusProcessing     Status = "Processing"
	StatusReadyForPickup Status = "ReadyForPickup"
	StatusCompleted      Status = "Completed"
	StatusCancelled      Status = "Cancelled"
)

// AllStatuses 按生命周期顺序排列
var AllStatuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusProcessing,
	StatusReadyForPickup,
	StatusCompleted,
	StatusCancelled,
}

// transitions 状态转换表：唯一的合法转换来源
var transitions = map[Status][]Status{
	StatusPending:        {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// IsValid 是否为已定义的六种状态之一
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal 终态不允许任何转换
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NextStatuses 返回当前状态允许的目标状态
func (s Status) NextStatuses() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo 判断 s -> target 是否合法，自转换永远非法
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

var statusAliases = map[string]Status{
	"pending":        StatusPending,
	"new":            StatusPending,
	"accepted":       StatusAccepted,
	"processing":     StatusProcessing,
	"readyforpickup": StatusReadyForPickup,
	"ready":          StatusReadyForPickup,
	"completed":      StatusCompleted,
	"cancelled":      StatusCancelled,
	"canceled":       StatusCancelled,
}

// ParseStatus 解析外部输入的状态，兼容管理后台使用的写法
// 例如 "ready", "Ready for Pickup", "ready_for_pickup"
func ParseStatus(raw string) (Status, bool) {
	key := strings.ToLower(raw)
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	s, ok := statusAliases[key]
	return s, ok
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMaterial OrderType = "MaterialOrder"
	OrderTypeService  OrderType = "ServiceOrder"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeMaterial || t == OrderTypeService
}

// PaymentStatus 支付状态，只能由支付确认回调修改
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

func (p PaymentStatus) IsValid() bool {
	return p == PaymentPending || p == PaymentPaid || p == PaymentFailed
}

// RefundStatus 退款状态
type RefundStatus string

const (
	RefundNotApplicable RefundStatus = "N/A"
	RefundPending       RefundStatus = "Pending"
	RefundProcessed     RefundStatus = "Processed"
)

// CancelSource 取消来源
type CancelSource string

const (
	CancelSourceShop         CancelSource = "Shop"
	CancelSourceAdmin        CancelSource = "Admin"
	CancelSourceCustomer     CancelSource = "Customer"
	CancelSourceProfessional CancelSource = "Professional"
)

func (c CancelSource) IsValid() bool {
	switch c {
	case CancelSourceShop, CancelSourceAdmin, CancelSourceCustomer, CancelSourceProfessional:
		return true
	}
	return false
}
