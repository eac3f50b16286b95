package strategy

import (
	"context"
	"errors"
	"net/url"
	"order_lifecycle/internal/pkg/config"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAlipayClient struct {
	mock.Mock
}

func (m *mockAlipayClient) TradeAppPay(param alipay.TradeAppPay) (string, error) {
	args := m.Called(param)
	return args.String(0), args.Error(1)
}

func (m *mockAlipayClient) DecodeNotification(values url.Values) (*alipay.Notification, error) {
	args := m.Called(values)
	noti, _ := args.Get(0).(*alipay.Notification)
	return noti, args.Error(1)
}

func (m *mockAlipayClient) TradeRefund(param alipay.TradeRefund) (*alipay.TradeRefundRsp, error) {
	args := m.Called(param)
	rsp, _ := args.Get(0).(*alipay.TradeRefundRsp)
	return rsp, args.Error(1)
}

func newTestAlipayStrategy() (*AlipayStrategy, *mockAlipayClient) {
	client := new(mockAlipayClient)
	return &AlipayStrategy{client: client, config: config.AlipayConfig{NotifyURL: "https://example.com/payments/notify/alipay"}}, client
}

func refundParams() RefundParams {
	return RefundParams{
		TradeNo:  "ORD001",
		RefundNo: "RFORD001",
		Amount:   decimal.NewFromInt(2450),
		Total:    decimal.NewFromInt(2450),
		Reason:   "Shop closed",
	}
}

func TestAlipayRefundSuccess(t *testing.T) {
	s, client := newTestAlipayStrategy()
	rsp := &alipay.TradeRefundRsp{TradeNo: "2024121222001"}
	rsp.Code = alipay.CodeSuccess
	client.On("TradeRefund", mock.MatchedBy(func(p alipay.TradeRefund) bool {
		return p.OutTradeNo == "ORD001" && p.OutRequestNo == "RFORD001" &&
			p.RefundAmount == "2450.00" && p.RefundReason == "Shop closed"
	})).Return(rsp, nil).Once()

	ref, err := s.Refund(context.Background(), refundParams())
	require.NoError(t, err)
	assert.Equal(t, "RFORD001", ref)
	client.AssertExpectations(t)
}

func TestAlipayRefundBusinessFailure(t *testing.T) {
	s, client := newTestAlipayStrategy()
	rsp := &alipay.TradeRefundRsp{}
	rsp.Code = alipay.Code("40004")
	rsp.SubCode = "ACQ.TRADE_NOT_EXIST"
	rsp.SubMsg = "交易不存在"
	client.On("TradeRefund", mock.Anything).Return(rsp, nil).Once()

	_, err := s.Refund(context.Background(), refundParams())
	assert.ErrorContains(t, err, "ACQ.TRADE_NOT_EXIST")
}

func TestAlipayRefundTransportError(t *testing.T) {
	s, client := newTestAlipayStrategy()
	client.On("TradeRefund", mock.Anything).Return(nil, errors.New("i/o timeout")).Once()

	_, err := s.Refund(context.Background(), refundParams())
	assert.ErrorContains(t, err, "i/o timeout")
}

func TestAlipayPayBuildsAppPayParams(t *testing.T) {
	s, client := newTestAlipayStrategy()
	client.On("TradeAppPay", mock.MatchedBy(func(p alipay.TradeAppPay) bool {
		return p.OutTradeNo == "ORD001" && p.TotalAmount == "99.50" &&
			p.ProductCode == "QUICK_MSECURITY_PAY" && p.NotifyURL == "https://example.com/payments/notify/alipay"
	})).Return("app_id=1&sign=abc", nil).Once()

	out, err := s.Pay(context.Background(), "ORD001", decimal.RequireFromString("99.5"), "Order ORD001")
	require.NoError(t, err)
	assert.Equal(t, "app_id=1&sign=abc", out)
}

func TestAlipayNotifyParsesAmount(t *testing.T) {
	s, client := newTestAlipayStrategy()
	values := url.Values{"out_trade_no": {"ORD001"}}
	client.On("DecodeNotification", values).Return(&alipay.Notification{
		OutTradeNo:  "ORD001",
		TradeNo:     "2024121222001",
		TotalAmount: "2450.00",
		TradeStatus: alipay.TradeStatusSuccess,
	}, nil).Once()

	res, err := s.Notify(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, "ORD001", res.TradeNo)
	assert.Equal(t, "2024121222001", res.ChannelRef)
	assert.True(t, res.Success)
	assert.True(t, decimal.NewFromInt(2450).Equal(res.Amount))

	_, err = s.Notify(context.Background(), "not form values")
	assert.Error(t, err)
}
