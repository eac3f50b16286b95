package model

import (
	"fmt"
	baseModel "order_lifecycle/pkg/model"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order 订单聚合根，只能通过生命周期引擎修改
type Order struct {
	ID        string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Status    Status    `gorm:"type:varchar(20);index;not null" json:"status"`
	OrderType OrderType `gorm:"type:varchar(20);not null" json:"orderType"`

	CustomerRef      string `gorm:"type:varchar(64);index" json:"customerRef"`
	CustomerName     string `gorm:"type:varchar(128)" json:"customerName"`
	CustomerPhone    string `gorm:"type:varchar(32)" json:"customerPhone"`
	ProfessionalRef  string `gorm:"type:varchar(64);index" json:"professionalRef,omitempty"`
	ProfessionalName string `gorm:"type:varchar(128)" json:"professionalName,omitempty"`
	ShopRef          string `gorm:"type:varchar(64);index" json:"shopRef,omitempty"`
	ShopName         string `gorm:"type:varchar(128)" json:"shopName,omitempty"`

	Items       []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"totalAmount"`

	PaymentStatus    PaymentStatus `gorm:"type:varchar(20);not null" json:"paymentStatus"`
	PaymentChannel   string        `gorm:"type:varchar(20)" json:"paymentChannel,omitempty"`
	PaymentReference string        `gorm:"type:varchar(64)" json:"paymentReference,omitempty"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`

	PickupOTP  *string  `gorm:"column:pickup_otp;type:varchar(8)" json:"pickupOtp,omitempty"`
	IssuedOTPs []string `gorm:"column:issued_otps;serializer:json;type:jsonb" json:"-"`

	RefundStatus    RefundStatus    `gorm:"type:varchar(20);not null;default:'N/A'" json:"refundStatus"`
	RefundAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"refundAmount"`
	RefundReference string          `gorm:"type:varchar(64)" json:"refundReference,omitempty"`
	RefundedAt      *time.Time      `json:"refundedAt,omitempty"`

	Cancellation *Cancellation `gorm:"serializer:json;type:jsonb" json:"cancellation,omitempty"`
	Complaint    *Complaint    `gorm:"serializer:json;type:jsonb" json:"complaint,omitempty"`
	Earnings     *Earnings     `gorm:"serializer:json;type:jsonb" json:"earnings,omitempty"`

	Timeline []TimelineEntry `gorm:"foreignKey:OrderID" json:"timeline"`

	Version     int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// OrderItem 订单商品行
type OrderItem struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"-"`
	OrderID     string          `gorm:"type:varchar(32);index;not null" json:"-"`
	Position    int             `gorm:"not null" json:"-"`
	ProductRef  string          `gorm:"type:varchar(64);not null" json:"productRef"`
	ProductName string          `gorm:"type:varchar(128)" json:"productName,omitempty"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unitPrice"`
}

// TimelineEntry 状态时间线，只追加不修改
type TimelineEntry struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"-"`
	OrderID   string    `gorm:"type:varchar(32);index;not null" json:"-"`
	Seq       int       `gorm:"not null" json:"seq"`
	Step      Status    `gorm:"type:varchar(20);not null" json:"step"`
	Actor     Actor     `gorm:"embedded;embeddedPrefix:actor_" json:"actor"`
	Notes     string    `gorm:"type:text" json:"notes"`
	Timestamp time.Time `gorm:"column:created_at;not null" json:"timestamp"`
}

func (TimelineEntry) TableName() string {
	return "order_timeline"
}

// Cancellation 取消信息，仅在 Cancelled 状态下存在
// RefundStatus 以订单的 refund_status 列为准，查询后同步
type Cancellation struct {
	Reason       string       `json:"reason"`
	Source       CancelSource `json:"source"`
	RefundStatus RefundStatus `json:"refundStatus"`
	CancelledAt  time.Time    `json:"cancelledAt"`
}

// Complaint 完成后的客诉
type Complaint struct {
	Reason   string    `json:"reason"`
	RaisedBy Actor     `json:"raisedBy"`
	RaisedAt time.Time `json:"raisedAt"`
	Open     bool      `json:"open"`
}

// Earnings 完成时的收益拆分
type Earnings struct {
	Rate               decimal.Decimal `json:"rate"`
	PlatformCommission decimal.Decimal `json:"platformCommission"`
	ShopShare          decimal.Decimal `json:"shopShare"`
	ProfessionalShare  decimal.Decimal `json:"professionalShare"`
	CreditedTo         string          `json:"creditedTo"`
}

// BeforeCreate 钩子：生成 UUID
func (i *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == "" {
		i.ID = baseModel.NewID()
	}
	return
}

// BeforeCreate 钩子：生成 UUID
func (e *TimelineEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = baseModel.NewID()
	}
	return
}

// AfterFind 将退款状态同步到取消信息中
func (o *Order) AfterFind(tx *gorm.DB) (err error) {
	o.syncCancellation()
	return
}

func (o *Order) syncCancellation() {
	if o.Cancellation != nil {
		o.Cancellation.RefundStatus = o.RefundStatus
	}
}

// LineTotal 行金额
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal sum(quantity × unitPrice)
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// CalculateTotal 重新计算订单总额
func (o *Order) CalculateTotal() {
	o.TotalAmount = o.ItemsTotal()
}

// Validate 下单校验
func (o *Order) Validate() error {
	if !o.OrderType.IsValid() {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, o.OrderType)
	}
	if o.CustomerRef == "" {
		return fmt.Errorf("%w: customer reference is required", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, item := range o.Items {
		if item.ProductRef == "" {
			return fmt.Errorf("%w: item %d has no product reference", ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d unit price must not be negative", ErrInvalidOrder, i)
		}
	}
	return nil
}

// TotalConsistent totalAmount 必须等于商品行合计
func (o *Order) TotalConsistent() bool {
	return o.TotalAmount.Equal(o.ItemsTotal())
}

// NextSeq 下一条时间线序号
func (o *Order) NextSeq() int {
	if len(o.Timeline) == 0 {
		return 1
	}
	return o.Timeline[len(o.Timeline)-1].Seq + 1
}

// Clone 深拷贝，引擎在副本上计算新状态，提交成功前不影响原快照
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	c.IssuedOTPs = append([]string(nil), o.IssuedOTPs...)
	if o.PickupOTP != nil {
		v := *o.PickupOTP
		c.PickupOTP = &v
	}
	if o.PaidAt != nil {
		v := *o.PaidAt
		c.PaidAt = &v
	}
	if o.RefundedAt != nil {
		v := *o.RefundedAt
		c.RefundedAt = &v
	}
	if o.CompletedAt != nil {
		v := *o.CompletedAt
		c.CompletedAt = &v
	}
	if o.CancelledAt != nil {
		v := *o.CancelledAt
		c.CancelledAt = &v
	}
	if o.Cancellation != nil {
		v := *o.Cancellation
		c.Cancellation = &v
	}
	if o.Complaint != nil {
		v := *o.Complaint
		c.Complaint = &v
	}
	if o.Earnings != nil {
		v := *o.Earnings
		c.Earnings = &v
	}
	return &c
}

// Sync 在引擎修改字段后调用，保持派生字段一致
func (o *Order) Sync() {
	o.syncCancellation()
}

// OrderSummary 读模型：管理后台列表使用的订单摘要
type OrderSummary struct {
	ID               string          `db:"id" json:"id"`
	Status           Status          `db:"status" json:"status"`
	OrderType        OrderType       `db:"order_type" json:"orderType"`
	CustomerName     string          `db:"customer_name" json:"customerName"`
	CustomerPhone    string          `db:"customer_phone" json:"customerPhone"`
	ProfessionalName string          `db:"professional_name" json:"professionalName"`
	ShopName         string          `db:"shop_name" json:"shopName"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"totalAmount"`
	PaymentStatus    PaymentStatus   `db:"payment_status" json:"paymentStatus"`
	RefundStatus     RefundStatus    `db:"refund_status" json:"refundStatus"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// SearchFilter 搜索条件，所有条件 AND 组合，文本匹配大小写不敏感
type SearchFilter struct {
	Query            string        `form:"q"`
	OrderID          string        `form:"orderId"`
	Customer         string        `form:"customer"` // 姓名或手机号
	ProfessionalName string        `form:"professional"`
	ShopName         string        `form:"shop"`
	Status           Status        `form:"status"`
	PaymentStatus    PaymentStatus `form:"paymentStatus"`
	OrderType        OrderType     `form:"orderType"`
	From             *time.Time    `form:"from" time_format:"2006-01-02"`
	To               *time.Time    `form:"to" time_format:"2006-01-02"`
}

// StatusCounts 每个状态的订单数
type StatusCounts map[Status]int64

// Total 全部订单数
func (c StatusCounts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}
