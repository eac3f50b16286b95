package model

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound              = errors.New("order not found")
	ErrInvalidTransition          = errors.New("invalid transition")
	ErrAlreadyTerminal            = errors.New("order is already in a terminal state")
	ErrMissingCancellationReason  = errors.New("cancellation requires a reason and a source")
	ErrConflictRetry              = errors.New("order was modified concurrently, re-fetch and retry")
	ErrRefundDispatchFailed       = errors.New("refund dispatch failed, pending retry")
	ErrNotificationDispatchFailed = errors.New("notification dispatch failed")

	ErrRefundNotAllowed    = errors.New("refund not allowed for this order")
	ErrInvalidPickupOTP    = errors.New("invalid pickup otp")
	ErrOTPAttemptsExceeded = errors.New("too many pickup otp attempts")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrOrderExists         = errors.New("order already exists")
)

// OrderError 携带订单上下文的错误，可通过 errors.Is 匹配上面的哨兵错误
type OrderError struct {
	OrderID string
	From    Status
	To      Status
	Err     error
}

func (e *OrderError) Error() string {
	switch {
	case e.From != "" && e.To != "":
		return fmt.Sprintf("order %s: %s -> %s: %v", e.OrderID, e.From, e.To, e.Err)
	case e.From != "":
		return fmt.Sprintf("order %s (%s): %v", e.OrderID, e.From, e.Err)
	}
	return fmt.Sprintf("order %s: %v", e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError 构造订单错误
func NewOrderError(orderID string, from, to Status, err error) error {
	return &OrderError{OrderID: orderID, From: from, To: to, Err: err}
}

// Reason 返回错误对应的分类名称，用于批量结果
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOrderNotFound):
		return "OrderNotFound"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrAlreadyTerminal):
		return "AlreadyTerminal"
	case errors.Is(err, ErrMissingCancellationReason):
		return "MissingCancellationReason"
	case errors.Is(err, ErrConflictRetry):
		return "ConflictRetry"
	case errors.Is(err, ErrRefundDispatchFailed):
		return "RefundDispatchFailed"
	case errors.Is(err, ErrRefundNotAllowed):
		return "RefundNotAllowed"
	case errors.Is(err, ErrInvalidPickupOTP):
		return "InvalidPickupOTP"
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return "OTPAttemptsExceeded"
	case errors.Is(err, ErrInvalidOrder):
		return "InvalidOrder"
	case errors.Is(err, ErrOrderExists):
		return "OrderExists"
	}
	return "InternalError"
}
