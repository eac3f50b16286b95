package repository

import (
	"context"
	"encoding/json"
	"errors"
	"order_lifecycle/internal/domain/payment/model"
	"time"

	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("payment transaction not found")

type PaymentRepository interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetByTradeNo(ctx context.Context, tradeNo string) (*model.Transaction, error)
	// GetPaidByOrderID 订单成功支付的流水，退款时使用
	GetPaidByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
	// MarkResult 仅更新仍为 pending 的流水，返回是否发生了修改
	MarkResult(ctx context.Context, tradeNo, status, channelRef string, paidAt *time.Time, extra json.RawMessage) (bool, error)
	MarkRefunded(ctx context.Context, id, refundNo, refundRef string, at time.Time) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *paymentRepository) GetByTradeNo(ctx context.Context, tradeNo string) (*model.Transaction, error) {
	var txn model.Transaction
	if err := r.db.WithContext(ctx).Where("trade_no = ?", tradeNo).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *paymentRepository) GetPaidByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []string{model.StatusPaid, model.StatusRefunded}).
		Order("paid_at DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *paymentRepository) MarkResult(ctx context.Context, tradeNo, status, channelRef string, paidAt *time.Time, extra json.RawMessage) (bool, error) {
	updates := map[string]interface{}{
		"status": status,
	}
	if channelRef != "" {
		updates["channel_ref"] = channelRef
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	if extra != nil {
		updates["extra_params"] = extra
	}
	result := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("trade_no = ? AND status = ?", tradeNo, model.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) MarkRefunded(ctx context.Context, id, refundNo, refundRef string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.StatusRefunded,
			"refund_no":   refundNo,
			"refund_ref":  refundRef,
			"refunded_at": at,
		}).Error
}
