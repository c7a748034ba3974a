package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when a handler answers the caller directly with a
// specific status and public error code. Code is what ends up in the
// {"error": code} body; Err is only for logs.
type RequestError struct {
	StatusCode int
	Code       string
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: %s: %v", r.StatusCode, r.Code, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

var (
	ErrNoFile        = &RequestError{StatusCode: 400, Code: "no_file", Err: errors.New("no audio file provided")}
	ErrNoText        = &RequestError{StatusCode: 400, Code: "no_text", Err: errors.New("text is required")}
	ErrInvalidFormat = &RequestError{StatusCode: 400, Code: "invalid_format", Err: errors.New("unsupported audio format")}

	ErrInternalServerError = &RequestError{StatusCode: 500, Code: "internal_error", Err: errors.New("internal server error")}
)

// InternalError hands err to the catch-all responder: 500 internal_error,
// not attributed to the capability.
func InternalError(err error) *RequestError {
	return &RequestError{StatusCode: 500, Code: ErrInternalServerError.Code, Err: err}
}

// BackendError is returned for any failed round trip to the generative-AI
// backend. The backend's own error codes are carried along for logging but
// never interpreted.
type BackendError struct {
	Capability string
	Err        error
}

func (b *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", b.Capability, b.Err)
}

func (b *BackendError) Unwrap() error {
	return b.Err
}

// FailureCode is the public error code for a failed capability.
func FailureCode(capability string) string {
	return capability + "_failed"
}
