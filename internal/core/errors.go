package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeNotIdentified      = "not_identified"
	ErrCodeEmptyMessage       = "empty_message"
	ErrCodeMessageTooLong     = "message_too_long"
	ErrCodeMessageFailed      = "message_failed"
	ErrCodeNotAllowed         = "not_allowed"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
	ErrPersistFailed  = errors.New("message could not be stored")
	ErrNotAllowed     = errors.New("messaging this user is not allowed")
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

// ToCoreError maps relay and validation errors onto wire error codes.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrEmptyMessage):
		return coreError(ErrCodeEmptyMessage, ErrEmptyMessage.Error())
	case errors.Is(err, ErrMessageTooLong):
		return coreError(ErrCodeMessageTooLong, ErrMessageTooLong.Error())
	case errors.Is(err, ErrNotAllowed):
		return coreError(ErrCodeNotAllowed, ErrNotAllowed.Error())
	case errors.Is(err, ErrPersistFailed):
		return coreError(ErrCodeMessageFailed, "message could not be sent")
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	default:
		return coreError(ErrCodeMessageFailed, "message could not be sent")
	}
}
