package push

import "errors"

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidDevice    = errors.New("invalid device registration")
	ErrUnknownPlatform  = errors.New("unknown push platform")
	ErrCircuitOpen      = errors.New("push gateway circuit open")
	ErrMissingGateway   = errors.New("push gateway url is required")
	ErrInvalidSignature = errors.New("invalid push request signature")
)
