package order

import (
	"order_lifecycle/internal/domain/order/handler"
	"order_lifecycle/internal/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// SetupOrderRoutes 设置订单模块路由
func SetupOrderRoutes(r gin.IRouter, h *handler.OrderHandler) {
	g := r.Group("/orders")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("", h.PlaceOrder)
		g.GET("", h.ListByStatus)
		g.GET("/:id", h.GetOrder)
		g.POST("/:id/transition", h.Transition)
		g.POST("/:id/complaint", h.RaiseComplaint)
		g.POST("/:id/pickup/verify", h.VerifyPickupOTP)
		g.POST("/:id/pickup/complete", h.CompletePickup)
		g.POST("/:id/pickup/otp", h.RegeneratePickupOTP)

		// 管理后台
		admin := g.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("/search", h.Search)
			admin.GET("/counts", h.AggregateCounts)
			admin.GET("/export", h.ExportOrders)
			admin.POST("/bulk/transition", h.BulkTransition)
			admin.POST("/:id/refund", h.RequestRefund)
		}
	}
}
