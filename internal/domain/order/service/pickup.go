package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/otp"
	"order_lifecycle/pkg/logger"

	"go.uber.org/zap"
)

func (e *orderEngine) VerifyPickupOTP(ctx context.Context, orderID, code string) error {
	if err := e.guard.Check(ctx, orderID); err != nil {
		if errors.Is(err, otp.ErrTooManyAttempts) {
			return model.NewOrderError(orderID, "", "", model.ErrOTPAttemptsExceeded)
		}
		return fmt.Errorf("check otp attempts for order %s: %w", orderID, err)
	}

	order, err := e.load(ctx, orderID, "")
	if err != nil {
		return err
	}

	// 完成或取消后验证码已失效
	if order.Status != model.StatusReadyForPickup || order.PickupOTP == nil ||
		subtle.ConstantTimeCompare([]byte(*order.PickupOTP), []byte(code)) != 1 {
		remaining, ferr := e.guard.Fail(ctx, orderID)
		if ferr != nil {
			logger.Log.Warn("record otp failure", zap.String("order_id", orderID), zap.Error(ferr))
		} else if remaining == 0 {
			return model.NewOrderError(orderID, order.Status, "", model.ErrOTPAttemptsExceeded)
		}
		return model.NewOrderError(orderID, order.Status, "", model.ErrInvalidPickupOTP)
	}

	if err := e.guard.Reset(ctx, orderID); err != nil {
		logger.Log.Warn("reset otp attempts", zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

func (e *orderEngine) CompletePickup(ctx context.Context, orderID, code string, actor model.Actor, notes string) (*model.Order, error) {
	if err := e.VerifyPickupOTP(ctx, orderID, code); err != nil {
		return nil, err
	}
	if notes == "" {
		notes = "Picked up with verified OTP"
	}
	return e.Transition(ctx, TransitionRequest{
		OrderID: orderID,
		Target:  model.StatusCompleted,
		Actor:   actor,
		Notes:   notes,
	})
}

// RegeneratePickupOTP 重新生成取货码，新码与该订单历史上所有取货码都不同
// 不是状态转换，不写时间线
func (e *orderEngine) RegeneratePickupOTP(ctx context.Context, orderID string, actor model.Actor) (*model.Order, error) {
	order, err := e.load(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, model.NewOrderError(orderID, order.Status, "", model.ErrAlreadyTerminal)
	}
	if order.Status != model.StatusReadyForPickup {
		return nil, model.NewOrderError(orderID, order.Status, model.StatusReadyForPickup,
			fmt.Errorf("%w: pickup otp is only issued in %s", model.ErrInvalidTransition, model.StatusReadyForPickup))
	}

	code, err := e.otpGen.Generate(order.IssuedOTPs)
	if err != nil {
		return nil, fmt.Errorf("generate pickup otp for order %s: %w", orderID, err)
	}

	now := e.now()
	next := order.Clone()
	next.PickupOTP = &code
	next.IssuedOTPs = append(next.IssuedOTPs, code)
	next.Version = order.Version + 1
	next.UpdatedAt = now

	if err := e.save(ctx, order, next); err != nil {
		return nil, err
	}
	if err := e.guard.Reset(ctx, orderID); err != nil {
		logger.Log.Warn("reset otp attempts", zap.String("order_id", orderID), zap.Error(err))
	}

	logger.Log.Info("pickup otp regenerated",
		zap.String("order_id", orderID),
		zap.String("actor", actor.String()))
	e.notifyParties(next, notify.Event{
		Type:       notify.EventPickupOTPIssued,
		OrderID:    orderID,
		Actor:      actor.String(),
		OccurredAt: now,
	})
	return next, nil
}
