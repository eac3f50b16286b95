package strategy

import (
	"context"
	"errors"
	"net/http"
	"order_lifecycle/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/app"
	"github.com/wechatpay-apiv3/wechatpay-go/services/refunddomestic"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

type WechatStrategy struct {
	client  *core.Client
	config  config.WechatPayConfig
	handler *notify.Handler
}

func NewWechatStrategy(cfg config.WechatPayConfig) (*WechatStrategy, error) {
	if cfg.MchID == "" {
		return nil, errors.New("wechat pay config missing")
	}

	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Client
	ctx := context.Background()
	opts := []core.ClientOption{
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	}

	client, err := core.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// 3. 证书管理器用于回调验签
	certVisitor := downloader.MgrInstance().GetCertificateVisitor(cfg.MchID)
	handler := notify.NewNotifyHandler(cfg.APIv3Key, verifiers.NewSHA256WithRSAVerifier(certVisitor))

	return &WechatStrategy{
		client:  client,
		config:  cfg,
		handler: handler,
	}, nil
}

func (s *WechatStrategy) Pay(ctx context.Context, tradeNo string, amount decimal.Decimal, subject string) (string, error) {
	req := app.PrepayRequest{
		Appid:       core.String(s.config.AppID),
		Mchid:       core.String(s.config.MchID),
		Description: core.String(subject),
		OutTradeNo:  core.String(tradeNo),
		NotifyUrl:   core.String(s.config.NotifyURL),
		Amount: &app.Amount{
			Total: core.Int64(toFen(amount)),
		},
	}

	svc := app.AppApiService{Client: s.client}
	resp, _, err := svc.Prepay(ctx, req)
	if err != nil {
		return "", err
	}
	return *resp.PrepayId, nil
}

func (s *WechatStrategy) Notify(ctx context.Context, params interface{}) (*NotifyResult, error) {
	req, ok := params.(*http.Request)
	if !ok {
		return nil, errors.New("invalid params type, expected *http.Request")
	}

	transaction := new(payments.Transaction)
	if _, err := s.handler.ParseNotifyRequest(ctx, req, transaction); err != nil {
		return nil, err
	}
	if transaction.OutTradeNo == nil || transaction.Amount == nil || transaction.Amount.Total == nil {
		return nil, errors.New("incomplete wechat transaction notification")
	}

	res := &NotifyResult{
		TradeNo: *transaction.OutTradeNo,
		Amount:  fromFen(*transaction.Amount.Total),
		Success: transaction.TradeState != nil && *transaction.TradeState == "SUCCESS",
	}
	if transaction.TransactionId != nil {
		res.ChannelRef = *transaction.TransactionId
	}
	return res, nil
}

// Refund 申请退款，OutRefundNo 固定为退款单号
func (s *WechatStrategy) Refund(ctx context.Context, p RefundParams) (string, error) {
	req := refunddomestic.CreateRequest{
		OutTradeNo:  core.String(p.TradeNo),
		OutRefundNo: core.String(p.RefundNo),
		Reason:      core.String(p.Reason),
		Amount: &refunddomestic.AmountReq{
			Refund:   core.Int64(toFen(p.Amount)),
			Total:    core.Int64(toFen(p.Total)),
			Currency: core.String("CNY"),
		},
	}
	if s.config.RefundNotifyURL != "" {
		req.NotifyUrl = core.String(s.config.RefundNotifyURL)
	}

	svc := refunddomestic.RefundsApiService{Client: s.client}
	resp, _, err := svc.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.RefundId != nil {
		return *resp.RefundId, nil
	}
	return p.RefundNo, nil
}

var _ PaymentStrategy = (*WechatStrategy)(nil)
