package repository

import (
	"context"
	"order_lifecycle/internal/domain/order/model"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const summaryColumns = `id, status, order_type, customer_name, customer_phone, professional_name,
	shop_name, total_amount, payment_status, refund_status, created_at, updated_at`

// ProjectionRepository 管理后台读模型，只读不写
type ProjectionRepository interface {
	ListByStatus(ctx context.Context, status model.Status, offset, limit int) ([]model.OrderSummary, int64, error)
	Search(ctx context.Context, filter model.SearchFilter, offset, limit int) ([]model.OrderSummary, int64, error)
	CountByStatus(ctx context.Context) (model.StatusCounts, error)
}

type projectionRepository struct {
	db *sqlx.DB
}

// NewProjectionRepository 基于 sqlx 的读模型仓库，可与 gorm 共用同一个 *sql.DB
func NewProjectionRepository(db *sqlx.DB) ProjectionRepository {
	return &projectionRepository{db: db}
}

func (r *projectionRepository) ListByStatus(ctx context.Context, status model.Status, offset, limit int) ([]model.OrderSummary, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM orders WHERE status = ?`), status); err != nil {
		return nil, 0, err
	}

	orders := []model.OrderSummary{}
	query := r.db.Rebind(`SELECT ` + summaryColumns + ` FROM orders WHERE status = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &orders, query, status, limit, offset); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *projectionRepository) Search(ctx context.Context, filter model.SearchFilter, offset, limit int) ([]model.OrderSummary, int64, error) {
	where, args := buildSearchWhere(filter)

	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM orders`+where), args...); err != nil {
		return nil, 0, err
	}

	orders := []model.OrderSummary{}
	query := r.db.Rebind(`SELECT ` + summaryColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &orders, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// CountByStatus 单条 GROUP BY 语句，保证所有状态来自同一快照
func (r *projectionRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	var rows []struct {
		Status model.Status `db:"status"`
		Count  int64        `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM orders GROUP BY status`); err != nil {
		return nil, err
	}

	counts := make(model.StatusCounts, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// buildSearchWhere 组装 AND 条件，文本使用 ILIKE 子串匹配
func buildSearchWhere(f model.SearchFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	like := func(s string) string {
		return "%" + escapeLike(strings.TrimSpace(s)) + "%"
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, `(id ILIKE ? OR customer_name ILIKE ? OR customer_phone ILIKE ? OR professional_name ILIKE ? OR shop_name ILIKE ?)`)
		p := like(q)
		args = append(args, p, p, p, p, p)
	}
	if f.OrderID != "" {
		conds = append(conds, `id ILIKE ?`)
		args = append(args, like(f.OrderID))
	}
	if f.Customer != "" {
		conds = append(conds, `(customer_name ILIKE ? OR customer_phone ILIKE ?)`)
		p := like(f.Customer)
		args = append(args, p, p)
	}
	if f.ProfessionalName != "" {
		conds = append(conds, `professional_name ILIKE ?`)
		args = append(args, like(f.ProfessionalName))
	}
	if f.ShopName != "" {
		conds = append(conds, `shop_name ILIKE ?`)
		args = append(args, like(f.ShopName))
	}
	if f.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, f.Status)
	}
	if f.PaymentStatus != "" {
		conds = append(conds, `payment_status = ?`)
		args = append(args, f.PaymentStatus)
	}
	if f.OrderType != "" {
		conds = append(conds, `order_type = ?`)
		args = append(args, f.OrderType)
	}
	if f.From != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		// 日期上界包含当天
		conds = append(conds, `created_at < ?`)
		args = append(args, endOfDay(*f.To))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
