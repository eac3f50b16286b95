package service

import (
	"context"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/otp"
	"order_lifecycle/internal/pkg/worker"
	"order_lifecycle/pkg/metrics"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memRepo 内存订单仓库，按 version 做乐观锁检查
type memRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	// commitErr 非空时 CommitTransition 直接失败
	commitErr error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]*model.Order)}
}

func (r *memRepo) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return model.ErrOrderExists
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	c := o.Clone()
	c.Sync()
	return c, nil
}

func (r *memRepo) CommitTransition(ctx context.Context, order *model.Order, entry *model.TimelineEntry, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	cur, ok := r.orders[order.ID]
	if !ok || cur.Version != expectedVersion {
		return model.ErrConflictRetry
	}
	stored := order.Clone()
	stored.Timeline = append(append([]model.TimelineEntry(nil), cur.Timeline...), *entry)
	r.orders[order.ID] = stored
	return nil
}

func (r *memRepo) Save(ctx context.Context, order *model.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[order.ID]
	if !ok || cur.Version != expectedVersion {
		return model.ErrConflictRetry
	}
	stored := order.Clone()
	stored.Timeline = append([]model.TimelineEntry(nil), cur.Timeline...)
	r.orders[order.ID] = stored
	return nil
}

func (r *memRepo) MarkRefundProcessed(ctx context.Context, orderID, reference string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[orderID]
	if !ok || cur.RefundStatus != model.RefundPending {
		return false, nil
	}
	cur.RefundStatus = model.RefundProcessed
	cur.RefundReference = reference
	cur.RefundAmount = cur.TotalAmount
	cur.RefundedAt = &at
	cur.Version++
	return true, nil
}

// put 直接写入指定状态的订单，用于构造测试前置条件
func (r *memRepo) put(o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
}

func (r *memRepo) get(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

// queueDispatcher 收集任务，由测试显式执行
type queueDispatcher struct {
	mu    sync.Mutex
	tasks []worker.Task
	full  bool
}

func (d *queueDispatcher) Submit(task worker.Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return false
	}
	d.tasks = append(d.tasks, task)
	return true
}

// drain 执行所有排队任务一次，返回失败的任务
func (d *queueDispatcher) drain() []worker.Task {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()

	var failed []worker.Task
	for _, task := range tasks {
		if err := task.Run(context.Background()); err != nil {
			failed = append(failed, task)
		}
	}
	return failed
}

func (d *queueDispatcher) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, task := range d.tasks {
		if task.Name == name {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	err    error
	events []notify.Event
	aud    []notify.Audience
}

func (n *recordingNotifier) Notify(ctx context.Context, audience notify.Audience, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.aud = append(n.aud, audience)
	return n.err
}

type mockRefunder struct {
	mock.Mock
}

func (m *mockRefunder) IssueRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*RefundResult)
	return res, args.Error(1)
}

// memGuard 内存版校验次数限制
type memGuard struct {
	mu    sync.Mutex
	max   int
	fails map[string]int
}

func newMemGuard(max int) *memGuard {
	return &memGuard{max: max, fails: make(map[string]int)}
}

func (g *memGuard) Check(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fails[key] >= g.max {
		return otp.ErrTooManyAttempts
	}
	return nil
}

func (g *memGuard) Fail(ctx context.Context, key string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fails[key]++
	remaining := g.max - g.fails[key]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (g *memGuard) Reset(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.fails, key)
	return nil
}

type fixture struct {
	repo     *memRepo
	disp     *queueDispatcher
	notifier *recordingNotifier
	refunder *mockRefunder
	guard    *memGuard
	reg      *prometheus.Registry
	metrics  *metrics.MetricsCollector
	engine   *orderEngine
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	f := &fixture{
		repo:     newMemRepo(),
		disp:     &queueDispatcher{},
		notifier: &recordingNotifier{},
		refunder: new(mockRefunder),
		guard:    newMemGuard(3),
		reg:      reg,
		metrics:  metrics.NewMetricsCollector(reg),
		now:      time.Date(2024, 12, 12, 10, 30, 0, 0, time.UTC),
	}
	e := NewOrderEngine(f.repo, otp.NewPickupGenerator(), f.guard, f.disp, f.notifier, f.metrics, Options{
		CommissionRate:  decimal.NewFromFloat(0.20),
		BulkConcurrency: 4,
		BulkMaxIDs:      10,
		RefundTimeout:   time.Second,
		RefundMaxRetry:  3,
	}).(*orderEngine)
	e.now = func() time.Time { return f.now }
	e.UseRefunder(f.refunder)
	f.engine = e
	return f
}

// counter 读取带单个标签的计数器当前值
func (f *fixture) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var (
	shopActor  = model.Actor{Kind: model.ActorShop, Ref: "SHOP1", Name: "Super Electronics"}
	adminActor = model.Actor{Kind: model.ActorAdmin, Ref: "ADM1", Name: "Ops"}
	proActor   = model.Actor{Kind: model.ActorProfessional, Ref: "PRO1", Name: "Amit Singh"}
)

// placeORD001 total = 1×2000 + 3×150 = 2450
func placeORD001(t *testing.T, f *fixture) *model.Order {
	t.Helper()
	order, err := f.engine.PlaceOrder(context.Background(), PlaceOrderRequest{
		ID:               "ORD001",
		OrderType:        model.OrderTypeMaterial,
		CustomerRef:      "CUST1",
		CustomerName:     "Rajesh Kumar",
		CustomerPhone:    "+91 98765 43210",
		ProfessionalRef:  "PRO1",
		ProfessionalName: "Amit Singh",
		ShopRef:          "SHOP1",
		ShopName:         "Super Electronics",
		Items: []ItemInput{
			{ProductRef: "P-INV", ProductName: "Inverter", Quantity: 1, UnitPrice: decimal.NewFromInt(2000)},
			{ProductRef: "P-CBL", ProductName: "Cable", Quantity: 3, UnitPrice: decimal.NewFromInt(150)},
		},
	})
	require.NoError(t, err)
	return order
}

// seed 直接构造指定状态的订单
func seed(f *fixture, id string, status model.Status, payment model.PaymentStatus) *model.Order {
	o := &model.Order{
		ID:              id,
		Status:          status,
		OrderType:       model.OrderTypeService,
		CustomerRef:     "CUST-" + id,
		ProfessionalRef: "PRO1",
		Items: []model.OrderItem{
			{OrderID: id, Position: 1, ProductRef: "S-AC", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
		},
		TotalAmount:   decimal.NewFromInt(1000),
		PaymentStatus: payment,
		RefundStatus:  model.RefundNotApplicable,
		Timeline: []model.TimelineEntry{
			{OrderID: id, Seq: 1, Step: model.StatusPending, Actor: model.SystemActor},
		},
		Version: 1,
	}
	if status == model.StatusReadyForPickup {
		code := "1234"
		o.PickupOTP = &code
		o.IssuedOTPs = []string{code}
	}
	f.repo.put(o)
	return o
}

func transition(f *fixture, id string, target model.Status, actor model.Actor) (*model.Order, error) {
	return f.engine.Transition(context.Background(), TransitionRequest{OrderID: id, Target: target, Actor: actor})
}
