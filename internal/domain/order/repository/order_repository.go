package repository

import (
	"context"
	"errors"
	"order_lifecycle/internal/domain/order/model"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgUniqueViolation PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

// stateColumns 每次提交都会整体写入的订单状态列
var stateColumns = []string{
	"status",
	"payment_status", "payment_channel", "payment_reference", "paid_at",
	"pickup_otp", "issued_otps",
	"refund_status", "refund_amount", "refund_reference", "refunded_at",
	"cancellation", "complaint", "earnings",
	"version", "updated_at", "completed_at", "cancelled_at",
}

// OrderRepository 订单写模型
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	// CommitTransition 在同一事务中写入新状态并追加时间线，expectedVersion 不匹配时返回 ErrConflictRetry
	CommitTransition(ctx context.Context, order *model.Order, entry *model.TimelineEntry, expectedVersion int64) error
	// Save 写入非状态转换类的修改 (支付确认、OTP 重发、客诉)
	Save(ctx context.Context, order *model.Order, expectedVersion int64) error
	// MarkRefundProcessed 仅当退款状态为 Pending 时标记为 Processed，返回是否发生了修改
	MarkRefundProcessed(ctx context.Context, orderID, reference string, at time.Time) (bool, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if isUniqueViolation(err) {
		return model.ErrOrderExists
	}
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) CommitTransition(ctx context.Context, order *model.Order, entry *model.TimelineEntry, expectedVersion int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateState(tx, order, expectedVersion); err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}

func (r *orderRepository) Save(ctx context.Context, order *model.Order, expectedVersion int64) error {
	return updateState(r.db.WithContext(ctx), order, expectedVersion)
}

func (r *orderRepository) MarkRefundProcessed(ctx context.Context, orderID, reference string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND refund_status = ?", orderID, model.RefundPending).
		Updates(map[string]interface{}{
			"refund_status":    model.RefundProcessed,
			"refund_reference": reference,
			"refund_amount":    gorm.Expr("total_amount"),
			"refunded_at":      at,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// updateState 乐观锁更新：WHERE id = ? AND version = ?
func updateState(tx *gorm.DB, order *model.Order, expectedVersion int64) error {
	result := tx.Model(order).
		Where("version = ?", expectedVersion).
		Select(stateColumns).
		Omit(clause.Associations).
		Updates(order)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrConflictRetry
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
