package service

import (
	"context"
	"errors"
	"fmt"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/domain/order/repository"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/otp"
	"order_lifecycle/internal/pkg/worker"
	"order_lifecycle/pkg/logger"
	"order_lifecycle/pkg/metrics"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderEngine 订单生命周期引擎，订单状态的唯一修改入口
type OrderEngine interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	Transition(ctx context.Context, req TransitionRequest) (*model.Order, error)
	BulkTransition(ctx context.Context, req BulkTransitionRequest) (map[string]BulkResult, error)
	RequestRefund(ctx context.Context, orderID string, actor model.Actor) (*model.Order, error)
	ConfirmPayment(ctx context.Context, req PaymentConfirmation) (*model.Order, error)
	VerifyPickupOTP(ctx context.Context, orderID, code string) error
	CompletePickup(ctx context.Context, orderID, code string, actor model.Actor, notes string) (*model.Order, error)
	RegeneratePickupOTP(ctx context.Context, orderID string, actor model.Actor) (*model.Order, error)
	RaiseComplaint(ctx context.Context, orderID string, actor model.Actor, reason string) (*model.Order, error)
	// UseRefunder 支付模块初始化后注入退款实现
	UseRefunder(r Refunder)
}

// Dispatcher 异步副作用派发，*worker.WorkerPool 实现了该接口
type Dispatcher interface {
	Submit(task worker.Task) bool
}

// Options 引擎配置
type Options struct {
	CommissionRate  decimal.Decimal
	BulkConcurrency int
	BulkMaxIDs      int
	RefundTimeout   time.Duration
	RefundMaxRetry  int
}

// PlaceOrderRequest 下单请求
type PlaceOrderRequest struct {
	ID               string          `json:"id"`
	OrderType        model.OrderType `json:"orderType" binding:"required"`
	CustomerRef      string          `json:"customerRef" binding:"required"`
	CustomerName     string          `json:"customerName"`
	CustomerPhone    string          `json:"customerPhone"`
	ProfessionalRef  string          `json:"professionalRef"`
	ProfessionalName string          `json:"professionalName"`
	ShopRef          string          `json:"shopRef"`
	ShopName         string          `json:"shopName"`
	Items            []ItemInput     `json:"items" binding:"required,min=1,dive"`
	Actor            model.Actor     `json:"-"`
}

// ItemInput 下单商品行
type ItemInput struct {
	ProductRef  string          `json:"productRef" binding:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// TransitionRequest 状态转换请求，取消时必须提供 Reason，Source 为空时由操作者推导
type TransitionRequest struct {
	OrderID string
	Target  model.Status
	Actor   model.Actor
	Notes   string
	Reason  string
	Source  model.CancelSource
}

// BulkTransitionRequest 批量转换，每个订单独立执行
type BulkTransitionRequest struct {
	OrderIDs []string
	Target   model.Status
	Actor    model.Actor
	Notes    string
	Reason   string
	Source   model.CancelSource
}

// BulkResult 单个订单的批量执行结果
type BulkResult struct {
	Success bool         `json:"success"`
	Reason  string       `json:"reason,omitempty"`
	Status  model.Status `json:"status,omitempty"`
}

// PaymentConfirmation 支付回调结果
type PaymentConfirmation struct {
	OrderID   string
	Status    model.PaymentStatus
	Channel   string
	Reference string
	PaidAt    time.Time
}

var ErrTooManyIDs = errors.New("too many order ids in one bulk request")

type orderEngine struct {
	repo       repository.OrderRepository
	otpGen     otp.Generator
	guard      otp.AttemptGuard
	dispatcher Dispatcher
	notifier   notify.Notifier
	metrics    *metrics.MetricsCollector
	opts       Options
	now        func() time.Time

	mu       sync.RWMutex
	refunder Refunder
}

func NewOrderEngine(
	repo repository.OrderRepository,
	otpGen otp.Generator,
	guard otp.AttemptGuard,
	dispatcher Dispatcher,
	notifier notify.Notifier,
	collector *metrics.MetricsCollector,
	opts Options,
) OrderEngine {
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 8
	}
	if opts.RefundTimeout <= 0 {
		opts.RefundTimeout = 10 * time.Second
	}
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &orderEngine{
		repo:       repo,
		otpGen:     otpGen,
		guard:      guard,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    collector,
		opts:       opts,
		now:        time.Now,
	}
}

func (e *orderEngine) UseRefunder(r Refunder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refunder = r
}

func (e *orderEngine) getRefunder() Refunder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refunder
}

func (e *orderEngine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.Order, error) {
	now := e.now()
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = NewOrderID()
	}

	order := &model.Order{
		ID:               id,
		Status:           model.StatusPending,
		OrderType:        req.OrderType,
		CustomerRef:      req.CustomerRef,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		ProfessionalRef:  req.ProfessionalRef,
		ProfessionalName: req.ProfessionalName,
		ShopRef:          req.ShopRef,
		ShopName:         req.ShopName,
		PaymentStatus:    model.PaymentPending,
		RefundStatus:     model.RefundNotApplicable,
		RefundAmount:     decimal.Zero,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, item := range req.Items {
		order.Items = append(order.Items, model.OrderItem{
			OrderID:     id,
			Position:    i + 1,
			ProductRef:  item.ProductRef,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	if err := order.Validate(); err != nil {
		return nil, model.NewOrderError(id, "", "", err)
	}
	order.CalculateTotal()

	actor := req.Actor
	if actor.Kind == "" {
		actor = model.Actor{Kind: model.ActorCustomer, Ref: req.CustomerRef, Name: req.CustomerName}
	}
	// 创建记录也是时间线的第一条
	order.Timeline = []model.TimelineEntry{{
		OrderID:   id,
		Seq:       1,
		Step:      model.StatusPending,
		Actor:     actor,
		Notes:     "Order placed",
		Timestamp: now,
	}}

	if err := e.repo.Create(ctx, order); err != nil {
		if errors.Is(err, model.ErrOrderExists) {
			return nil, model.NewOrderError(id, "", "", model.ErrOrderExists)
		}
		return nil, fmt.Errorf("create order %s: %w", id, err)
	}

	logger.Log.Info("order placed",
		zap.String("order_id", id),
		zap.String("type", string(order.OrderType)),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	e.notifyParties(order, notify.Event{
		Type:       notify.EventOrderPlaced,
		OrderID:    id,
		To:         string(model.StatusPending),
		Actor:      actor.String(),
		OccurredAt: now,
	})
	return order, nil
}

func (e *orderEngine) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return e.load(ctx, orderID, "")
}

// load 读取订单，不存在时返回带上下文的 ErrOrderNotFound
func (e *orderEngine) load(ctx context.Context, orderID string, target model.Status) (*model.Order, error) {
	order, err := e.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return nil, model.NewOrderError(orderID, "", target, model.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}

// validateTransition 校验顺序：自转换、终态、转换表
func validateTransition(from, to model.Status) error {
	switch {
	case from == to || !to.IsValid():
		return model.ErrInvalidTransition
	case from.IsTerminal():
		return model.ErrAlreadyTerminal
	case !from.CanTransitionTo(to):
		return model.ErrInvalidTransition
	}
	return nil
}

func (e *orderEngine) Transition(ctx context.Context, req TransitionRequest) (*model.Order, error) {
	order, err := e.load(ctx, req.OrderID, req.Target)
	if err != nil {
		e.metrics.RecordTransition("", string(req.Target), model.Reason(err))
		return nil, err
	}

	next, entry, err := e.apply(order, req)
	if err != nil {
		e.metrics.RecordTransition(string(order.Status), string(req.Target), model.Reason(err))
		return nil, err
	}

	if err := e.repo.CommitTransition(ctx, next, entry, order.Version); err != nil {
		if errors.Is(err, model.ErrConflictRetry) {
			err = model.NewOrderError(order.ID, order.Status, req.Target, model.ErrConflictRetry)
		} else {
			err = fmt.Errorf("commit transition of order %s: %w", order.ID, err)
		}
		e.metrics.RecordTransition(string(order.Status), string(req.Target), model.Reason(err))
		return nil, err
	}
	next.Timeline = append(next.Timeline, *entry)

	e.metrics.RecordTransition(string(order.Status), string(next.Status), "ok")
	logger.Log.Info("order transitioned",
		zap.String("order_id", next.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor", req.Actor.String()),
		zap.Int64("version", next.Version))

	// 提交后再派发通知，不在临界区内等待
	e.notifyParties(next, notify.Event{
		Type:       notify.EventStatusChanged,
		OrderID:    next.ID,
		From:       string(order.Status),
		To:         string(next.Status),
		Actor:      req.Actor.String(),
		Notes:      entry.Notes,
		OccurredAt: entry.Timestamp,
	})
	return next, nil
}

// apply 在副本上计算转换后的订单与时间线记录，不修改 order
func (e *orderEngine) apply(order *model.Order, req TransitionRequest) (*model.Order, *model.TimelineEntry, error) {
	from, to := order.Status, req.Target
	if err := validateTransition(from, to); err != nil {
		return nil, nil, model.NewOrderError(order.ID, from, to, err)
	}

	now := e.now()
	next := order.Clone()
	next.Status = to
	next.Version = order.Version + 1
	next.UpdatedAt = now
	notes := strings.TrimSpace(req.Notes)

	switch to {
	case model.StatusReadyForPickup:
		code, err := e.otpGen.Generate(order.IssuedOTPs)
		if err != nil {
			return nil, nil, fmt.Errorf("generate pickup otp for order %s: %w", order.ID, err)
		}
		next.PickupOTP = &code
		next.IssuedOTPs = append(next.IssuedOTPs, code)

	case model.StatusCompleted:
		next.PickupOTP = nil
		next.CompletedAt = &now
		if next.PaymentStatus == model.PaymentPaid {
			next.Earnings = SplitEarnings(next, e.opts.CommissionRate)
		}

	case model.StatusCancelled:
		reason := strings.TrimSpace(req.Reason)
		source := req.Source
		if source == "" {
			source, _ = req.Actor.CancelSource()
		}
		if reason == "" || !source.IsValid() {
			return nil, nil, model.NewOrderError(order.ID, from, to, model.ErrMissingCancellationReason)
		}
		next.PickupOTP = nil
		next.CancelledAt = &now
		next.Cancellation = &model.Cancellation{
			Reason:      reason,
			Source:      source,
			CancelledAt: now,
		}
		if next.PaymentStatus == model.PaymentPaid {
			next.RefundStatus = model.RefundPending
		}
		if notes == "" {
			notes = reason
		}
	}
	next.Sync()

	entry := &model.TimelineEntry{
		OrderID:   order.ID,
		Seq:       order.NextSeq(),
		Step:      to,
		Actor:     req.Actor,
		Notes:     notes,
		Timestamp: now,
	}
	return next, entry, nil
}

func (e *orderEngine) BulkTransition(ctx context.Context, req BulkTransitionRequest) (map[string]BulkResult, error) {
	ids := dedupe(req.OrderIDs)
	if e.opts.BulkMaxIDs > 0 && len(ids) > e.opts.BulkMaxIDs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), e.opts.BulkMaxIDs)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]BulkResult, len(ids))
		g       errgroup.Group
	)
	g.SetLimit(e.opts.BulkConcurrency)

	for _, id := range ids {
		// 单个订单失败不返回错误，避免影响其他订单
		g.Go(func() error {
			order, err := e.Transition(ctx, TransitionRequest{
				OrderID: id,
				Target:  req.Target,
				Actor:   req.Actor,
				Notes:   req.Notes,
				Reason:  req.Reason,
				Source:  req.Source,
			})
			res := BulkResult{Success: err == nil}
			if err != nil {
				res.Reason = model.Reason(err)
			} else {
				res.Status = order.Status
			}
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (e *orderEngine) ConfirmPayment(ctx context.Context, req PaymentConfirmation) (*model.Order, error) {
	if req.Status != model.PaymentPaid && req.Status != model.PaymentFailed {
		return nil, model.NewOrderError(req.OrderID, "", "", fmt.Errorf("%w: unsupported payment status %q", model.ErrInvalidOrder, req.Status))
	}
	order, err := e.load(ctx, req.OrderID, "")
	if err != nil {
		return nil, err
	}

	// 已支付后重复回调或迟到的失败回调都是幂等成功
	if order.PaymentStatus == model.PaymentPaid || order.PaymentStatus == req.Status {
		return order, nil
	}

	now := e.now()
	next := order.Clone()
	next.PaymentStatus = req.Status
	next.PaymentChannel = req.Channel
	next.PaymentReference = req.Reference
	next.Version = order.Version + 1
	next.UpdatedAt = now

	if req.Status == model.PaymentPaid {
		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		next.PaidAt = &paidAt
		switch next.Status {
		case model.StatusCancelled:
			// 订单取消后才到账，需要退款
			next.RefundStatus = model.RefundPending
		case model.StatusCompleted:
			if next.Earnings == nil {
				next.Earnings = SplitEarnings(next, e.opts.CommissionRate)
			}
		}
	}
	next.Sync()

	if err := e.save(ctx, order, next); err != nil {
		return nil, err
	}

	logger.Log.Info("order payment confirmed",
		zap.String("order_id", next.ID),
		zap.String("payment_status", string(next.PaymentStatus)),
		zap.String("channel", next.PaymentChannel),
		zap.String("reference", next.PaymentReference))
	e.notifyParties(next, notify.Event{
		Type:       notify.EventPaymentConfirmed,
		OrderID:    next.ID,
		From:       string(order.PaymentStatus),
		To:         string(next.PaymentStatus),
		Actor:      model.SystemActor.String(),
		OccurredAt: now,
	})
	return next, nil
}

func (e *orderEngine) RaiseComplaint(ctx context.Context, orderID string, actor model.Actor, reason string) (*model.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, model.NewOrderError(orderID, "", "", fmt.Errorf("%w: complaint reason is required", model.ErrInvalidOrder))
	}
	order, err := e.load(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusCompleted {
		return nil, model.NewOrderError(orderID, order.Status, "", fmt.Errorf("%w: complaints can only be raised on completed orders", model.ErrInvalidTransition))
	}
	if order.Complaint != nil && order.Complaint.Open {
		return order, nil
	}

	now := e.now()
	next := order.Clone()
	next.Complaint = &model.Complaint{Reason: reason, RaisedBy: actor, RaisedAt: now, Open: true}
	if next.PaymentStatus == model.PaymentPaid && next.RefundStatus != model.RefundProcessed {
		next.RefundStatus = model.RefundPending
	}
	next.Version = order.Version + 1
	next.UpdatedAt = now
	next.Sync()

	if err := e.save(ctx, order, next); err != nil {
		return nil, err
	}

	logger.Log.Info("order complaint raised",
		zap.String("order_id", orderID),
		zap.String("actor", actor.String()))
	e.notifyParties(next, notify.Event{
		Type:       notify.EventComplaintRaised,
		OrderID:    orderID,
		Actor:      actor.String(),
		Notes:      reason,
		OccurredAt: now,
	})
	return next, nil
}

// save 非转换类修改的乐观锁写入
func (e *orderEngine) save(ctx context.Context, order, next *model.Order) error {
	if err := e.repo.Save(ctx, next, order.Version); err != nil {
		if errors.Is(err, model.ErrConflictRetry) {
			return model.NewOrderError(order.ID, order.Status, "", model.ErrConflictRetry)
		}
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return nil
}

// NewOrderID 生成订单号，例如 ORD7F3A9C21B04E
func NewOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD" + strings.ToUpper(id[:12])
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
