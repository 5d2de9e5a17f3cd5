package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
	ErrCodeRecipientNotFound = "recipient_not_found"
	ErrCodePersistFailed     = "persist_failed"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeUnknownEvent      = "unknown_event"
)

// Connection-time rejections. The text doubles as the refusal reason.
var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnauthorized = errors.New("unauthorized")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// NewBadRequest is used by transports for undecodable inbound payloads.
func NewBadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// NewRateLimited reports an inbound event rejected by the connection's limiter.
func NewRateLimited() *CoreError {
	return coreError(ErrCodeRateLimited, "rate limit exceeded")
}

// NewUnknownEvent reports an inbound event name the namespace does not serve.
func NewUnknownEvent() *CoreError {
	return coreError(ErrCodeUnknownEvent, "unknown event")
}
