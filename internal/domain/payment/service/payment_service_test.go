package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	orderModel "order_lifecycle/internal/domain/order/model"
	orderService "order_lifecycle/internal/domain/order/service"
	"order_lifecycle/internal/domain/payment/model"
	"order_lifecycle/internal/domain/payment/repository"
	"order_lifecycle/internal/domain/payment/strategy"
	baseModel "order_lifecycle/pkg/model"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPaymentRepository is a mock of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	return m.Called(txn).Error(0)
}

func (m *MockPaymentRepository) GetByTradeNo(ctx context.Context, tradeNo string) (*model.Transaction, error) {
	args := m.Called(tradeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockPaymentRepository) GetPaidByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockPaymentRepository) MarkResult(ctx context.Context, tradeNo, status, channelRef string, paidAt *time.Time, extra json.RawMessage) (bool, error) {
	args := m.Called(tradeNo, status, channelRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkRefunded(ctx context.Context, id, refundNo, refundRef string, at time.Time) error {
	return m.Called(id, refundNo, refundRef).Error(0)
}

// MockStrategy is a mock of PaymentStrategy
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Pay(ctx context.Context, tradeNo string, amount decimal.Decimal, subject string) (string, error) {
	args := m.Called(tradeNo, amount.StringFixed(2))
	return args.String(0), args.Error(1)
}

func (m *MockStrategy) Notify(ctx context.Context, params interface{}) (*strategy.NotifyResult, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*strategy.NotifyResult), args.Error(1)
}

func (m *MockStrategy) Refund(ctx context.Context, p strategy.RefundParams) (string, error) {
	args := m.Called(p)
	return args.String(0), args.Error(1)
}

// MockOrderGateway is a mock of OrderGateway
type MockOrderGateway struct {
	mock.Mock
}

func (m *MockOrderGateway) GetOrder(ctx context.Context, orderID string) (*orderModel.Order, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderModel.Order), args.Error(1)
}

func (m *MockOrderGateway) ConfirmPayment(ctx context.Context, req orderService.PaymentConfirmation) (*orderModel.Order, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderModel.Order), args.Error(1)
}

var fixedNow = time.Date(2024, 12, 12, 11, 0, 0, 0, time.UTC)

func newTestService() (*paymentService, *MockPaymentRepository, *MockStrategy, *MockOrderGateway) {
	repo, st, orders := new(MockPaymentRepository), new(MockStrategy), new(MockOrderGateway)
	s := NewPaymentService(repo, orders).(*paymentService)
	s.now = func() time.Time { return fixedNow }
	s.RegisterStrategy(model.ChannelAlipay, st)
	return s, repo, st, orders
}

func TestPayCreatesTransaction(t *testing.T) {
	s, repo, st, orders := newTestService()
	orders.On("GetOrder", "ORD001").Return(&orderModel.Order{
		ID: "ORD001", Status: orderModel.StatusAccepted, PaymentStatus: orderModel.PaymentPending,
		TotalAmount: decimal.NewFromInt(2450),
	}, nil)
	repo.On("CreateTransaction", mock.MatchedBy(func(txn *model.Transaction) bool {
		return txn.OrderID == "ORD001" && txn.Status == model.StatusPending && txn.Amount.Equal(decimal.NewFromInt(2450))
	})).Return(nil)
	st.On("Pay", mock.AnythingOfType("string"), "2450.00").Return("app_id=xxx&sign=yyy", nil)

	txn, param, err := s.Pay(context.Background(), "ORD001", model.ChannelAlipay)
	require.NoError(t, err)
	assert.Equal(t, "app_id=xxx&sign=yyy", param)
	assert.Regexp(t, `^ORD001[0-9A-F]{8}$`, txn.TradeNo)
	repo.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestPayRejectsPaidOrCancelledOrders(t *testing.T) {
	s, repo, _, orders := newTestService()
	orders.On("GetOrder", "PAID").Return(&orderModel.Order{ID: "PAID", Status: orderModel.StatusAccepted, PaymentStatus: orderModel.PaymentPaid}, nil)
	orders.On("GetOrder", "GONE").Return(&orderModel.Order{ID: "GONE", Status: orderModel.StatusCancelled, PaymentStatus: orderModel.PaymentPending}, nil)

	_, _, err := s.Pay(context.Background(), "PAID", model.ChannelAlipay)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
	_, _, err = s.Pay(context.Background(), "GONE", model.ChannelAlipay)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
	_, _, err = s.Pay(context.Background(), "PAID", "unionpay")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
	repo.AssertNotCalled(t, "CreateTransaction", mock.Anything)
}

func TestHandleNotifyConfirmsPayment(t *testing.T) {
	s, repo, st, orders := newTestService()
	form := url.Values{"out_trade_no": {"ORD001ABCD1234"}}
	st.On("Notify", form).Return(&strategy.NotifyResult{
		TradeNo: "ORD001ABCD1234", ChannelRef: "2024121222001", Amount: decimal.NewFromInt(2450), Success: true,
	}, nil)
	repo.On("GetByTradeNo", "ORD001ABCD1234").Return(&model.Transaction{
		TradeNo: "ORD001ABCD1234", OrderID: "ORD001", Amount: decimal.NewFromInt(2450), Status: model.StatusPending,
	}, nil)
	repo.On("MarkResult", "ORD001ABCD1234", model.StatusPaid, "2024121222001").Return(true, nil)
	orders.On("ConfirmPayment", orderService.PaymentConfirmation{
		OrderID: "ORD001", Status: orderModel.PaymentPaid, Channel: "alipay", Reference: "2024121222001", PaidAt: fixedNow,
	}).Return(&orderModel.Order{ID: "ORD001"}, nil)

	require.NoError(t, s.HandleNotify(context.Background(), "alipay", form))
	orders.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestHandleNotifyFailedPayment(t *testing.T) {
	s, repo, st, orders := newTestService()
	st.On("Notify", mock.Anything).Return(&strategy.NotifyResult{TradeNo: "T1", Amount: decimal.NewFromInt(1), Success: false}, nil)
	repo.On("GetByTradeNo", "T1").Return(&model.Transaction{TradeNo: "T1", OrderID: "ORD002", Amount: decimal.NewFromInt(100)}, nil)
	repo.On("MarkResult", "T1", model.StatusFailed, "").Return(true, nil)
	orders.On("ConfirmPayment", mock.MatchedBy(func(req orderService.PaymentConfirmation) bool {
		return req.OrderID == "ORD002" && req.Status == orderModel.PaymentFailed && req.Reference == "T1"
	})).Return(&orderModel.Order{ID: "ORD002"}, nil)

	require.NoError(t, s.HandleNotify(context.Background(), "alipay", url.Values{}))
	orders.AssertExpectations(t)
}

func TestHandleNotifyAmountMismatch(t *testing.T) {
	s, repo, st, orders := newTestService()
	st.On("Notify", mock.Anything).Return(&strategy.NotifyResult{TradeNo: "T1", Amount: decimal.NewFromInt(1), Success: true}, nil)
	repo.On("GetByTradeNo", "T1").Return(&model.Transaction{TradeNo: "T1", OrderID: "ORD001", Amount: decimal.NewFromInt(2450)}, nil)

	err := s.HandleNotify(context.Background(), "alipay", url.Values{})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything)
}

func TestHandleNotifyBadSignature(t *testing.T) {
	s, repo, st, _ := newTestService()
	st.On("Notify", mock.Anything).Return(nil, errors.New("bad signature"))

	assert.Error(t, s.HandleNotify(context.Background(), "alipay", url.Values{}))
	repo.AssertNotCalled(t, "GetByTradeNo", mock.Anything)
}

func TestIssueRefundUsesOriginalChannel(t *testing.T) {
	s, repo, st, _ := newTestService()
	repo.On("GetPaidByOrderID", "ORD001").Return(&model.Transaction{
		BaseModel: baseModel.BaseModel{ID: "txn-1"}, TradeNo: "ORD001ABCD1234", OrderID: "ORD001", Channel: model.ChannelAlipay,
		Amount: decimal.NewFromInt(2450), Status: model.StatusPaid,
	}, nil)
	st.On("Refund", strategy.RefundParams{
		TradeNo: "ORD001ABCD1234", RefundNo: "RFORD001", Amount: decimal.NewFromInt(2450),
		Total: decimal.NewFromInt(2450), Reason: "Out of stock",
	}).Return("RFORD001", nil).Once()
	repo.On("MarkRefunded", "txn-1", "RFORD001", "RFORD001").Return(nil)

	res, err := s.IssueRefund(context.Background(), orderService.RefundRequest{
		OrderID: "ORD001", RefundNo: "RFORD001", Channel: "alipay",
		Amount: decimal.NewFromInt(2450), Total: decimal.NewFromInt(2450), Reason: "Out of stock",
	})
	require.NoError(t, err)
	assert.Equal(t, "RFORD001", res.Reference)
	st.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestIssueRefundAlreadyRefunded(t *testing.T) {
	s, repo, st, _ := newTestService()
	repo.On("GetPaidByOrderID", "ORD001").Return(&model.Transaction{
		TradeNo: "T1", OrderID: "ORD001", Channel: model.ChannelAlipay, Status: model.StatusRefunded,
		RefundNo: "RFORD001", RefundRef: "ali-rf-1",
	}, nil)

	res, err := s.IssueRefund(context.Background(), orderService.RefundRequest{OrderID: "ORD001", RefundNo: "RFORD001"})
	require.NoError(t, err)
	assert.Equal(t, "ali-rf-1", res.Reference)
	st.AssertNotCalled(t, "Refund", mock.Anything)
}

func TestIssueRefundWithoutPaidTransaction(t *testing.T) {
	s, repo, _, _ := newTestService()
	repo.On("GetPaidByOrderID", "ORD404").Return(nil, repository.ErrTransactionNotFound)

	_, err := s.IssueRefund(context.Background(), orderService.RefundRequest{OrderID: "ORD404", RefundNo: "RFORD404"})
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestIssueRefundChannelFailure(t *testing.T) {
	s, repo, st, _ := newTestService()
	repo.On("GetPaidByOrderID", "ORD001").Return(&model.Transaction{TradeNo: "T1", Channel: model.ChannelAlipay, Status: model.StatusPaid}, nil)
	st.On("Refund", mock.Anything).Return("", errors.New("ACQ.SYSTEM_ERROR"))

	_, err := s.IssueRefund(context.Background(), orderService.RefundRequest{OrderID: "ORD001", RefundNo: "RFORD001"})
	assert.Error(t, err)
	repo.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything)
}
