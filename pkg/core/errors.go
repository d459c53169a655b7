package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error for every component boundary. UI layers render
// Message; Type is stable and safe to branch on.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest    ErrorType = "invalid_request_error"
	ErrPermissionDenied  ErrorType = "permission_denied"
	ErrConnection        ErrorType = "connection_error"
	ErrEmptyResponse     ErrorType = "empty_response"
	ErrMalformedResponse ErrorType = "malformed_response"
	ErrDecode            ErrorType = "decode_error"
	ErrAPI               ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewPermissionDeniedError creates a media-device permission error.
func NewPermissionDeniedError(message string, cause error) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message, Cause: cause}
}

// NewConnectionError creates a streaming connection error.
func NewConnectionError(message string, cause error) *Error {
	return &Error{Type: ErrConnection, Message: message, Cause: cause}
}

// NewEmptyResponseError creates an error for a vendor response with no content.
func NewEmptyResponseError(message string) *Error {
	return &Error{Type: ErrEmptyResponse, Message: message}
}

// NewMalformedResponseError creates an error for unparseable structured output.
func NewMalformedResponseError(message string, cause error) *Error {
	return &Error{Type: ErrMalformedResponse, Message: message, Cause: cause}
}

// NewDecodeError creates an error for a malformed audio payload.
func NewDecodeError(message string) *Error {
	return &Error{Type: ErrDecode, Message: message}
}

// NewAPIError creates a generic vendor API error.
func NewAPIError(message string, cause error) *Error {
	return &Error{Type: ErrAPI, Message: message, Cause: cause}
}

// IsType reports whether err is (or wraps) a *core.Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
