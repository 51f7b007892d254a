package exception

import "errors"

var (
	ErrOrderNotRunning      = errors.New("order: manager not running")
	ErrOrderInvalidIntent   = errors.New("order: invalid intent")
	ErrOrderNotCancelable   = errors.New("order: not cancelable")
	ErrOrderQueueFull       = errors.New("order: queue full")
	ErrOrderNilVenue        = errors.New("order: nil venue")
	ErrOrderNilChannel      = errors.New("order: nil event channel")
	ErrOrderNilRiskGate     = errors.New("order: nil risk gate")
	ErrOrderNilStateMachine = errors.New("order: nil state machine")
	ErrOrderEmptyKey        = errors.New("order: empty order key")
	ErrOrderRetryExhausted  = errors.New("order: retry not allowed")
	ErrOrderUnknown         = errors.New("order: unknown order key")
	ErrOrderDuplicateKey    = errors.New("order: duplicate order key")
)

var (
	ErrOrderInvalidWorkerConfig = errors.New("order: invalid worker config")
	ErrOrderUnknownTopic        = errors.New("order: unknown topic")
)
