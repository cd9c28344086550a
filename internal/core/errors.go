package core

// Error codes for domain errors.
const (
	ErrCodeTopicNotFound     = "topic_not_found"
	ErrCodeAlreadySubscribed = "already_subscribed"
	ErrCodeNotSubscribed     = "not_subscribed"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeForbidden         = "forbidden"
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
