package handler

import (
	"errors"
	"net/http"
	orderModel "order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/domain/payment/service"
	"order_lifecycle/pkg/logger"
	"order_lifecycle/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service service.PaymentService
}

func NewPaymentHandler(s service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: s}
}

type PayInput struct {
	Channel string `json:"channel" binding:"required,oneof=alipay wechat"`
}

// Pay 发起支付
// @Summary 为订单发起支付
// @Tags Payment
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Param input body PayInput true "Channel"
// @Success 200 {object} response.Response{data=map[string]string} "Pay Param"
// @Router /payment/orders/{id}/pay [post]
func (h *PaymentHandler) Pay(c *gin.Context) {
	var input PayInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	txn, payParam, err := h.service.Pay(c.Request.Context(), c.Param("id"), input.Channel)
	if err != nil {
		switch {
		case errors.Is(err, orderModel.ErrOrderNotFound):
			response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, err.Error())
		case errors.Is(err, service.ErrOrderNotPayable):
			response.Error(c, http.StatusConflict, response.ErrPaymentChannel, err.Error())
		case errors.Is(err, service.ErrUnsupportedChannel):
			response.Error(c, http.StatusBadRequest, response.ErrPaymentChannel, err.Error())
		default:
			logger.Log.Error("initiate payment", zap.String("order_id", c.Param("id")), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal error")
		}
		return
	}

	response.Success(c, gin.H{
		"trade_no":  txn.TradeNo,
		"amount":    txn.Amount.StringFixed(2),
		"pay_param": payParam,
	})
}

// AlipayNotify 支付宝回调
// @Summary 支付宝回调
// @Tags Payment
// @Router /payment/notify/alipay [post]
func (h *PaymentHandler) AlipayNotify(c *gin.Context) {
	// 支付宝回调是 POST Form 格式
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	if err := h.service.HandleNotify(c.Request.Context(), "alipay", c.Request.Form); err != nil {
		logger.Log.Warn("alipay notify failed", zap.Error(err))
		c.String(http.StatusOK, "fail") // 告诉支付宝处理失败，它会重试
		return
	}
	c.String(http.StatusOK, "success")
}

// WechatNotify 微信支付回调
// @Summary 微信支付回调
// @Tags Payment
// @Router /payment/notify/wechat [post]
func (h *PaymentHandler) WechatNotify(c *gin.Context) {
	// 微信支付回调是 JSON 格式，签名信息在 Header 中，直接交给 Strategy 处理
	if err := h.service.HandleNotify(c.Request.Context(), "wechat", c.Request); err != nil {
		logger.Log.Warn("wechat notify failed", zap.Error(err))
		// 返回 4xx/5xx 表示失败
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": err.Error()})
		return
	}
	// 返回 2xx 表示成功
	c.Status(http.StatusOK)
}
