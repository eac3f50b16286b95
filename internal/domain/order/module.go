package order

import (
	"order_lifecycle/internal/domain/order/handler"
	"order_lifecycle/internal/domain/order/repository"
	"order_lifecycle/internal/domain/order/service"
	"order_lifecycle/internal/pkg/otp"
	"order_lifecycle/internal/pkg/registry"
	"order_lifecycle/pkg/cache"
	"time"

	"github.com/shopspring/decimal"
)

// EngineService 其他模块通过该名称获取订单引擎
const EngineService = "order.engine"

// OrderModule 订单生命周期模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 支付模块需要注入退款实现，订单模块必须先初始化
	return 10
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config.Order

	// 1. 依赖注入
	repo := repository.NewOrderRepository(ctx.DB)
	guard := otp.NewRedisAttemptGuard(ctx.Redis, cfg.OTPMaxAttempts, cfg.OTPLockout)
	engine := service.NewOrderEngine(repo, otp.NewPickupGenerator(), guard, ctx.Workers, ctx.Notifier, ctx.Metrics, service.Options{
		CommissionRate:  decimal.NewFromFloat(cfg.CommissionRate),
		BulkConcurrency: cfg.BulkConcurrency,
		BulkMaxIDs:      cfg.BulkMaxIDs,
		RefundTimeout:   cfg.RefundTimeout,
		RefundMaxRetry:  ctx.Config.Worker.MaxRetry,
	})

	query := service.NewQueryService(
		repository.NewProjectionRepository(ctx.SQLX),
		cache.NewMultiLevelCache(cache.NewMemoryCache(), cache.NewRedisCache(ctx.Redis, "order_lifecycle:"), time.Second),
		ctx.Uploader,
		ctx.Metrics,
		service.QueryOptions{
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			CountsCacheTTL:  cfg.CountsCacheTTL,
			ExportMaxRows:   cfg.ExportMaxRows,
		},
	)

	ctx.Provide(EngineService, engine)

	// 2. 路由注册
	SetupOrderRoutes(ctx.Router, handler.NewOrderHandler(engine, query))

	return nil
}
