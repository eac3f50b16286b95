package handler

import (
	"errors"
	"fmt"
	"net/http"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/domain/order/service"
	"order_lifecycle/internal/pkg/middleware"
	"order_lifecycle/pkg/logger"
	"order_lifecycle/pkg/response"
	"order_lifecycle/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderHandler 订单处理器
type OrderHandler struct {
	engine service.OrderEngine
	query  service.QueryService
}

// NewOrderHandler 创建处理器
func NewOrderHandler(engine service.OrderEngine, query service.QueryService) *OrderHandler {
	return &OrderHandler{engine: engine, query: query}
}

// TransitionInput 状态转换输入，取消时 reason 必填
type TransitionInput struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// BulkTransitionInput 批量转换输入
type BulkTransitionInput struct {
	OrderIDs []string `json:"orderIds" binding:"required,min=1"`
	TransitionInput
}

// ComplaintInput 客诉输入
type ComplaintInput struct {
	Reason string `json:"reason" binding:"required"`
}

// PickupInput 取货验证码输入
type PickupInput struct {
	Code  string `json:"code" binding:"required,len=4,numeric"`
	Notes string `json:"notes"`
}

// actorFrom 由认证信息构造审计操作者
func actorFrom(c *gin.Context) model.Actor {
	userID, role, name := middleware.CurrentUser(c)
	return model.Actor{Kind: model.ActorKind(role), Ref: userID, Name: name}
}

// parseStatus 未识别的写法原样交给引擎，由引擎返回 InvalidTransition
func parseStatus(raw string) model.Status {
	if s, ok := model.ParseStatus(raw); ok {
		return s
	}
	return model.Status(raw)
}

// PlaceOrder 下单
// @Summary 下单
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param input body service.PlaceOrderRequest true "Order Info"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	req.Actor = actorFrom(c)

	order, err := h.engine.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// GetOrder 订单详情
// @Summary 订单详情，包含商品与时间线
// @Tags Order
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.engine.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// ListByStatus 按状态分页
// @Summary 按状态分页查询订单
// @Tags Order
// @Produce json
// @Security Bearer
// @Param status query string true "Status"
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /orders [get]
func (h *OrderHandler) ListByStatus(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	raw := c.Query("status")
	if raw == "" {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "status is required")
		return
	}

	res, err := h.query.ListByStatus(c.Request.Context(), parseStatus(raw), page)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, res)
}

func bindSearch(c *gin.Context) (model.SearchFilter, utils.Pagination, error) {
	var (
		filter model.SearchFilter
		page   utils.Pagination
	)
	if err := c.ShouldBindQuery(&filter); err != nil {
		return filter, page, err
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		return filter, page, err
	}
	if filter.Status != "" {
		filter.Status = parseStatus(string(filter.Status))
	}
	return filter, page, nil
}

// Search 组合条件搜索
// @Summary 管理后台订单搜索
// @Tags Order
// @Produce json
// @Security Bearer
// @Param q query string false "Keyword"
// @Param status query string false "Status"
// @Param paymentStatus query string false "Payment Status"
// @Param from query string false "From (2006-01-02)"
// @Param to query string false "To (2006-01-02)"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /orders/search [get]
func (h *OrderHandler) Search(c *gin.Context) {
	filter, page, err := bindSearch(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	res, err := h.query.Search(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, res)
}

// AggregateCounts 各状态订单数
// @Summary 各状态订单数
// @Tags Order
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=map[string]int64}
// @Router /orders/counts [get]
func (h *OrderHandler) AggregateCounts(c *gin.Context) {
	counts, err := h.query.AggregateCounts(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"counts": counts, "total": counts.Total()})
}

// ExportOrders 导出 CSV
// @Summary 导出订单 CSV，配置了 OSS 时返回下载地址
// @Tags Order
// @Produce json
// @Produce text/csv
// @Security Bearer
// @Success 200 {object} response.Response{data=service.ExportResult}
// @Router /orders/export [get]
func (h *OrderHandler) ExportOrders(c *gin.Context) {
	filter, _, err := bindSearch(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	res, err := h.query.ExportOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	if res.URL != "" {
		response.Success(c, res)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", res.Data)
}

// Transition 状态转换
// @Summary 订单状态转换
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Param input body TransitionInput true "Target"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{id}/transition [post]
func (h *OrderHandler) Transition(c *gin.Context) {
	var input TransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.engine.Transition(c.Request.Context(), service.TransitionRequest{
		OrderID: c.Param("id"),
		Target:  parseStatus(input.Status),
		Actor:   actorFrom(c),
		Notes:   input.Notes,
		Reason:  input.Reason,
		Source:  model.CancelSource(input.Source),
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// BulkTransition 批量状态转换
// @Summary 批量状态转换，逐单返回结果
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param input body BulkTransitionInput true "Orders"
// @Success 200 {object} response.Response{data=map[string]service.BulkResult}
// @Router /orders/bulk/transition [post]
func (h *OrderHandler) BulkTransition(c *gin.Context) {
	var input BulkTransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	results, err := h.engine.BulkTransition(c.Request.Context(), service.BulkTransitionRequest{
		OrderIDs: input.OrderIDs,
		Target:   parseStatus(input.Status),
		Actor:    actorFrom(c),
		Notes:    input.Notes,
		Reason:   input.Reason,
		Source:   model.CancelSource(input.Source),
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, results)
}

// RequestRefund 发起退款
// @Summary 发起退款，渠道失败时返回 202 并在后台重试
// @Tags Order
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Success 202 {object} response.Response{data=model.Order} "Pending retry"
// @Router /orders/{id}/refund [post]
func (h *OrderHandler) RequestRefund(c *gin.Context) {
	order, err := h.engine.RequestRefund(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		if order != nil {
			writeError(c, err, order)
		} else {
			writeError(c, err, nil)
		}
		return
	}
	response.Success(c, order)
}

// RaiseComplaint 客诉
// @Summary 对已完成订单发起客诉
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Param input body ComplaintInput true "Reason"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{id}/complaint [post]
func (h *OrderHandler) RaiseComplaint(c *gin.Context) {
	var input ComplaintInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	order, err := h.engine.RaiseComplaint(c.Request.Context(), c.Param("id"), actorFrom(c), input.Reason)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// VerifyPickupOTP 校验取货码
// @Summary 校验取货码
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Param input body PickupInput true "Code"
// @Success 200 {object} response.Response
// @Router /orders/{id}/pickup/verify [post]
func (h *OrderHandler) VerifyPickupOTP(c *gin.Context) {
	var input PickupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := h.engine.VerifyPickupOTP(c.Request.Context(), c.Param("id"), input.Code); err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"verified": true})
}

// CompletePickup 验证取货码并完成订单
// @Summary 验证取货码并完成订单
// @Tags Order
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Param input body PickupInput true "Code"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{id}/pickup/complete [post]
func (h *OrderHandler) CompletePickup(c *gin.Context) {
	var input PickupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	order, err := h.engine.CompletePickup(c.Request.Context(), c.Param("id"), input.Code, actorFrom(c), input.Notes)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// RegeneratePickupOTP 重新生成取货码
// @Summary 重新生成取货码
// @Tags Order
// @Produce json
// @Security Bearer
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{id}/pickup/otp [post]
func (h *OrderHandler) RegeneratePickupOTP(c *gin.Context) {
	order, err := h.engine.RegeneratePickupOTP(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, order)
}

// errorMapping 错误对应的 HTTP 状态与业务码
var errorMapping = []struct {
	target   error
	httpCode int
	code     int
}{
	{model.ErrOrderNotFound, http.StatusNotFound, response.ErrOrderNotFound},
	{model.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{model.ErrAlreadyTerminal, http.StatusConflict, response.ErrAlreadyTerminal},
	{model.ErrMissingCancellationReason, http.StatusUnprocessableEntity, response.ErrMissingCancellationReason},
	{model.ErrConflictRetry, http.StatusConflict, response.ErrConflictRetry},
	{model.ErrRefundDispatchFailed, http.StatusAccepted, response.ErrRefundDispatchFailed},
	{model.ErrRefundNotAllowed, http.StatusConflict, response.ErrRefundNotAllowed},
	{model.ErrInvalidPickupOTP, http.StatusUnprocessableEntity, response.ErrInvalidPickupOTP},
	{model.ErrOTPAttemptsExceeded, http.StatusTooManyRequests, response.ErrOTPAttemptsExceeded},
	{model.ErrInvalidOrder, http.StatusBadRequest, response.ErrInvalidOrder},
	{model.ErrOrderExists, http.StatusConflict, response.ErrOrderExists},
	{service.ErrTooManyIDs, http.StatusBadRequest, response.ErrInvalidParam},
}

// writeError 将引擎错误映射为响应，data 非空时随响应返回 (退款待重试时的订单快照)
func writeError(c *gin.Context, err error, data interface{}) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if data != nil {
				response.ErrorWithData(c, m.httpCode, m.code, err.Error(), data)
			} else {
				response.Error(c, m.httpCode, m.code, err.Error())
			}
			return
		}
	}
	logger.Log.Error("order request failed",
		zap.String("path", c.FullPath()),
		zap.String("trace_id", c.GetString(middleware.ContextTraceID)),
		zap.Error(err))
	response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal error")
}
