package service

import (
	"context"
	"encoding/csv"
	"errors"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/pkg/cache"
	"order_lifecycle/pkg/metrics"
	"order_lifecycle/pkg/utils"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProjectionRepo struct {
	mock.Mock
}

func (m *mockProjectionRepo) ListByStatus(ctx context.Context, status model.Status, offset, limit int) ([]model.OrderSummary, int64, error) {
	args := m.Called(status, offset, limit)
	orders, _ := args.Get(0).([]model.OrderSummary)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *mockProjectionRepo) Search(ctx context.Context, filter model.SearchFilter, offset, limit int) ([]model.OrderSummary, int64, error) {
	args := m.Called(filter, offset, limit)
	orders, _ := args.Get(0).([]model.OrderSummary)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *mockProjectionRepo) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	args := m.Called()
	counts, _ := args.Get(0).(model.StatusCounts)
	return counts, args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) UploadBytes(name string, data []byte, contentType string) (string, error) {
	args := m.Called(name, data, contentType)
	return args.String(0), args.Error(1)
}

func newQueryFixture(repo *mockProjectionRepo, c cache.CacheService, up *mockUploader) *queryService {
	var opts = QueryOptions{DefaultPageSize: 10, MaxPageSize: 50, CountsCacheTTL: time.Minute, ExportMaxRows: 100}
	var s QueryService
	if up == nil {
		s = NewQueryService(repo, c, nil, metrics.NewMetricsCollector(prometheus.NewRegistry()), opts)
	} else {
		s = NewQueryService(repo, c, up, metrics.NewMetricsCollector(prometheus.NewRegistry()), opts)
	}
	qs := s.(*queryService)
	qs.now = func() time.Time { return time.Date(2024, 12, 12, 10, 30, 0, 0, time.UTC) }
	return qs
}

func sampleSummaries() []model.OrderSummary {
	created := time.Date(2024, 12, 12, 9, 0, 0, 0, time.UTC)
	return []model.OrderSummary{
		{ID: "ORD001", Status: model.StatusAccepted, OrderType: model.OrderTypeMaterial, CustomerName: "Rajesh Kumar",
			CustomerPhone: "+91 98765 43210", ShopName: "Super Electronics", TotalAmount: decimal.NewFromInt(2450),
			PaymentStatus: model.PaymentPaid, RefundStatus: model.RefundNotApplicable, CreatedAt: created},
		{ID: "ORD002", Status: model.StatusAccepted, OrderType: model.OrderTypeService, CustomerName: "Priya, Sharma",
			ProfessionalName: "Amit Singh", TotalAmount: decimal.RequireFromString("999.9"),
			PaymentStatus: model.PaymentPending, RefundStatus: model.RefundNotApplicable, CreatedAt: created},
	}
}

func TestListByStatusBoundsPage(t *testing.T) {
	repo := new(mockProjectionRepo)
	repo.On("ListByStatus", model.StatusAccepted, 50, 50).Return(sampleSummaries(), int64(52), nil)
	s := newQueryFixture(repo, nil, nil)

	res, err := s.ListByStatus(context.Background(), model.StatusAccepted, utils.Pagination{Page: 2, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(52), res.Total)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 50, res.Limit)
	assert.Len(t, res.List, 2)
	repo.AssertExpectations(t)
}

func TestListByStatusRejectsUnknownStatus(t *testing.T) {
	repo := new(mockProjectionRepo)
	s := newQueryFixture(repo, nil, nil)

	_, err := s.ListByStatus(context.Background(), "Packed", utils.Pagination{})
	assert.ErrorIs(t, err, model.ErrInvalidOrder)
	repo.AssertNotCalled(t, "ListByStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchValidatesFilter(t *testing.T) {
	repo := new(mockProjectionRepo)
	s := newQueryFixture(repo, nil, nil)
	from := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)

	for name, filter := range map[string]model.SearchFilter{
		"status":   {Status: "Shipped"},
		"payment":  {PaymentStatus: "Settled"},
		"type":     {OrderType: "Gift"},
		"reversed": {From: &from, To: &to},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Search(context.Background(), filter, utils.Pagination{})
			assert.ErrorIs(t, err, model.ErrInvalidOrder)
		})
	}
}

func TestSearchPassesFilterThrough(t *testing.T) {
	repo := new(mockProjectionRepo)
	filter := model.SearchFilter{Customer: "rajesh", Status: model.StatusAccepted}
	repo.On("Search", filter, 0, 10).Return(sampleSummaries()[:1], int64(1), nil)
	s := newQueryFixture(repo, nil, nil)

	res, err := s.Search(context.Background(), filter, utils.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, 1, res.Page)
	repo.AssertExpectations(t)
}

func TestAggregateCountsUsesCache(t *testing.T) {
	repo := new(mockProjectionRepo)
	counts := model.StatusCounts{model.StatusPending: 3, model.StatusAccepted: 2, model.StatusCancelled: 1}
	repo.On("CountByStatus").Return(counts, nil).Once()
	s := newQueryFixture(repo, cache.NewMemoryCache(), nil)

	first, err := s.AggregateCounts(context.Background())
	require.NoError(t, err)
	second, err := s.AggregateCounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, counts, first)
	assert.Equal(t, counts, second)
	assert.Equal(t, int64(6), second.Total())
	repo.AssertNumberOfCalls(t, "CountByStatus", 1)
}

func TestAggregateCountsWithoutCache(t *testing.T) {
	repo := new(mockProjectionRepo)
	repo.On("CountByStatus").Return(model.StatusCounts{}, nil)
	s := newQueryFixture(repo, nil, nil)

	_, err := s.AggregateCounts(context.Background())
	require.NoError(t, err)
	_, err = s.AggregateCounts(context.Background())
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CountByStatus", 2)
}

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV(sampleSummaries())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Order ID", records[0][0])
	assert.Equal(t, "ORD001", records[1][0])
	assert.Equal(t, "2450.00", records[1][7])
	assert.Equal(t, "Priya, Sharma", records[2][3])
	assert.Equal(t, "999.90", records[2][7])
	assert.Equal(t, "2024-12-12T09:00:00Z", records[2][10])
}

func TestExportOrdersUploads(t *testing.T) {
	repo := new(mockProjectionRepo)
	repo.On("Search", model.SearchFilter{}, 0, 100).Return(sampleSummaries(), int64(2), nil)
	up := new(mockUploader)
	up.On("UploadBytes", "orders-20241212-103000.csv", mock.Anything, "text/csv").
		Return("https://oss.example.com/exports/orders.csv", nil)
	s := newQueryFixture(repo, nil, up)

	res, err := s.ExportOrders(context.Background(), model.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "https://oss.example.com/exports/orders.csv", res.URL)
	assert.NotEmpty(t, res.Data)
	up.AssertExpectations(t)
}

func TestExportOrdersFallsBackWhenUploadFails(t *testing.T) {
	repo := new(mockProjectionRepo)
	repo.On("Search", model.SearchFilter{}, 0, 100).Return(sampleSummaries(), int64(2), nil)
	up := new(mockUploader)
	up.On("UploadBytes", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("oss unavailable"))
	s := newQueryFixture(repo, nil, up)

	res, err := s.ExportOrders(context.Background(), model.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, res.URL)
	assert.Contains(t, string(res.Data), "ORD002")
}
