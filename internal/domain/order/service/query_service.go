package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/domain/order/repository"
	"order_lifecycle/internal/pkg/uploader"
	"order_lifecycle/pkg/cache"
	"order_lifecycle/pkg/logger"
	"order_lifecycle/pkg/metrics"
	"order_lifecycle/pkg/utils"
	"time"

	"go.uber.org/zap"
)

const countsCacheKey = "order:counts"

// QueryOptions 读模型配置
type QueryOptions struct {
	DefaultPageSize int
	MaxPageSize     int
	CountsCacheTTL  time.Duration
	ExportMaxRows   int
}

// ExportResult 导出结果，配置了 OSS 时返回下载地址，否则返回文件内容
type ExportResult struct {
	FileName string `json:"fileName"`
	URL      string `json:"url,omitempty"`
	Rows     int    `json:"rows"`
	Data     []byte `json:"-"`
}

// QueryService 管理后台查询，只读
type QueryService interface {
	ListByStatus(ctx context.Context, status model.Status, page utils.Pagination) (*utils.PageResult, error)
	Search(ctx context.Context, filter model.SearchFilter, page utils.Pagination) (*utils.PageResult, error)
	AggregateCounts(ctx context.Context) (model.StatusCounts, error)
	ExportOrders(ctx context.Context, filter model.SearchFilter) (*ExportResult, error)
}

type queryService struct {
	repo     repository.ProjectionRepository
	cache    cache.CacheService
	uploader uploader.Uploader
	metrics  *metrics.MetricsCollector
	opts     QueryOptions
	now      func() time.Time
}

// NewQueryService cache 与 up 可以为 nil
func NewQueryService(repo repository.ProjectionRepository, c cache.CacheService, up uploader.Uploader, collector *metrics.MetricsCollector, opts QueryOptions) QueryService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = 50
	}
	if opts.ExportMaxRows <= 0 {
		opts.ExportMaxRows = 10000
	}
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &queryService{
		repo:     repo,
		cache:    c,
		uploader: up,
		metrics:  collector,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *queryService) ListByStatus(ctx context.Context, status model.Status, page utils.Pagination) (*utils.PageResult, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidOrder, status)
	}
	offset, limit := page.Bound(s.opts.DefaultPageSize, s.opts.MaxPageSize)
	orders, total, err := s.repo.ListByStatus(ctx, status, offset, limit)
	if err != nil {
		return nil, err
	}
	return &utils.PageResult{List: orders, Total: total, Page: page.Page, Limit: limit}, nil
}

func (s *queryService) Search(ctx context.Context, filter model.SearchFilter, page utils.Pagination) (*utils.PageResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	offset, limit := page.Bound(s.opts.DefaultPageSize, s.opts.MaxPageSize)
	orders, total, err := s.repo.Search(ctx, filter, offset, limit)
	if err != nil {
		return nil, err
	}
	return &utils.PageResult{List: orders, Total: total, Page: page.Page, Limit: limit}, nil
}

func validateFilter(f model.SearchFilter) error {
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidOrder, f.Status)
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.IsValid() {
		return fmt.Errorf("%w: unknown payment status %q", model.ErrInvalidOrder, f.PaymentStatus)
	}
	if f.OrderType != "" && !f.OrderType.IsValid() {
		return fmt.Errorf("%w: unknown order type %q", model.ErrInvalidOrder, f.OrderType)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("%w: date range end is before start", model.ErrInvalidOrder)
	}
	return nil
}

// AggregateCounts 单条 GROUP BY 快照，缓存 CountsCacheTTL，过期前允许看到旧值
func (s *queryService) AggregateCounts(ctx context.Context) (model.StatusCounts, error) {
	if s.cache != nil && s.opts.CountsCacheTTL > 0 {
		var cached model.StatusCounts
		err := s.cache.Get(ctx, countsCacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(countsCacheKey, true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(countsCacheKey, false)
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Log.Warn("read counts cache", zap.Error(err))
		}
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.opts.CountsCacheTTL > 0 {
		if err := s.cache.Set(ctx, countsCacheKey, counts, s.opts.CountsCacheTTL); err != nil {
			logger.Log.Warn("write counts cache", zap.Error(err))
		}
	}
	return counts, nil
}

var exportHeader = []string{
	"Order ID", "Status", "Order Type", "Customer", "Phone", "Professional", "Shop",
	"Total", "Payment", "Refund", "Created At",
}

func (s *queryService) ExportOrders(ctx context.Context, filter model.SearchFilter) (*ExportResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	orders, _, err := s.repo.Search(ctx, filter, 0, s.opts.ExportMaxRows)
	if err != nil {
		return nil, err
	}

	data, err := WriteCSV(orders)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{
		FileName: fmt.Sprintf("orders-%s.csv", s.now().Format("20060102-150405")),
		Rows:     len(orders),
		Data:     data,
	}

	if s.uploader != nil {
		url, err := s.uploader.UploadBytes(res.FileName, data, "text/csv")
		if err != nil {
			// 上传失败时退回直接下载
			logger.Log.Warn("upload order export", zap.String("file", res.FileName), zap.Error(err))
			return res, nil
		}
		res.URL = url
	}
	return res, nil
}

// WriteCSV 订单摘要导出为 CSV
func WriteCSV(orders []model.OrderSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, o := range orders {
		record := []string{
			o.ID,
			string(o.Status),
			string(o.OrderType),
			o.CustomerName,
			o.CustomerPhone,
			o.ProfessionalName,
			o.ShopName,
			o.TotalAmount.StringFixed(2),
			string(o.PaymentStatus),
			string(o.RefundStatus),
			o.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
