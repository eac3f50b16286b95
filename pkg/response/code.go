package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 鉴权错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 订单模块错误 300xx
	ErrOrderNotFound             = 30001
	ErrInvalidTransition         = 30002
	ErrAlreadyTerminal           = 30003
	ErrMissingCancellationReason = 30004
	ErrConflictRetry             = 30005
	ErrRefundDispatchFailed      = 30006
	ErrRefundNotAllowed          = 30007
	ErrInvalidPickupOTP          = 30008
	ErrOTPAttemptsExceeded       = 30009
	ErrInvalidOrder              = 30010
	ErrOrderExists               = 30011

	// 支付模块错误 400xx
	ErrPaymentChannel = 40001
	ErrPaymentNotify  = 40002

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
