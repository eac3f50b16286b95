package payment

import (
	"fmt"
	"order_lifecycle/internal/domain/order"
	orderService "order_lifecycle/internal/domain/order/service"
	"order_lifecycle/internal/domain/payment/handler"
	"order_lifecycle/internal/domain/payment/repository"
	"order_lifecycle/internal/domain/payment/service"
	"order_lifecycle/internal/domain/payment/strategy"
	"order_lifecycle/internal/pkg/middleware"
	"order_lifecycle/internal/pkg/registry"
	"order_lifecycle/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentModule 支付模块
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	// 支付模块依赖订单引擎，所以优先级较低
	return 20
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	svc, err := ctx.Resolve(order.EngineService)
	if err != nil {
		return err
	}
	engine, ok := svc.(orderService.OrderEngine)
	if !ok {
		return fmt.Errorf("%s has unexpected type %T", order.EngineService, svc)
	}

	pRepo := repository.NewPaymentRepository(ctx.DB)
	pService := service.NewPaymentService(pRepo, engine)

	// 2. 注册支付策略
	// 支付宝
	if ctx.Config.Alipay.AppID != "" {
		alipayStrategy, err := strategy.NewAlipayStrategy(ctx.Config.Alipay)
		if err != nil {
			logger.Log.Error("Failed to init Alipay strategy", zap.Error(err))
		} else {
			pService.RegisterStrategy("alipay", alipayStrategy)
		}
	}

	// 微信支付
	if ctx.Config.Wechat.MchID != "" {
		wechatStrategy, err := strategy.NewWechatStrategy(ctx.Config.Wechat)
		if err != nil {
			logger.Log.Error("Failed to init Wechat strategy", zap.Error(err))
		} else {
			pService.RegisterStrategy("wechat", wechatStrategy)
		}
	}

	// 订单引擎通过支付服务原路退款
	engine.UseRefunder(pService)

	pHandler := handler.NewPaymentHandler(pService)

	// 3. 路由注册
	setupRoutes(ctx.Router, pHandler)

	return nil
}

func setupRoutes(r gin.IRouter, h *handler.PaymentHandler) {
	g := r.Group("/payment")

	// 支付回调 (无需鉴权，但需验签)
	g.POST("/notify/alipay", h.AlipayNotify)
	g.POST("/notify/wechat", h.WechatNotify)

	// 需要鉴权的接口
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware())
	{
		auth.POST("/orders/:id/pay", h.Pay)
	}
}
