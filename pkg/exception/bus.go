package exception

import "errors"

var (
	ErrBusClosed         = errors.New("bus: channel closed")
	ErrBusQueueFull      = errors.New("bus: subscriber queue full")
	ErrBusInvalidTopic   = errors.New("bus: invalid topic")
	ErrBusNilHandler     = errors.New("bus: nil handler")
	ErrBusUnknownKind    = errors.New("bus: unknown channel kind")
	ErrBusEmptyRedisAddr = errors.New("bus: redis address is required")
)
