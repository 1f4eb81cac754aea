package domain

import "errors"

var (
	ErrValidation        = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrGatewayUnavailable is a retryable upstream failure (network error,
	// 5xx); ErrGatewayRejected is terminal (the gateway understood the
	// request and refused it).
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")

	// ErrUnmatchedCallback marks a gateway callback with no corresponding
	// transaction row. The callback endpoint acknowledges these instead of
	// erroring, so the gateway does not retry forever.
	ErrUnmatchedCallback = errors.New("callback matches no transaction")
)
