// Package domain provides the canonical types and error values shared by the assistant.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrorType is the coarse category of a failure as the HTTP boundary sees it.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeServer         ErrorType = "server"
)

var statusByType = map[ErrorType]int{
	ErrorTypeInvalidRequest: http.StatusBadRequest,
	ErrorTypeNotFound:       http.StatusNotFound,
	ErrorTypeRateLimit:      http.StatusTooManyRequests,
	ErrorTypeOverloaded:     http.StatusServiceUnavailable,
	ErrorTypeServer:         http.StatusInternalServerError,
}

// ErrorCode narrows an invalid request down to what was wrong with it.
type ErrorCode string

const (
	ErrorCodeMissingQuery ErrorCode = "missing_query"
	ErrorCodeInvalidBody  ErrorCode = "invalid_body"
)

// APIError is the only error shape the HTTP boundary writes to clients.
// Message must never carry provider or internal error text; Cause is for
// operator logs only.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`

	Cause error `json:"-"`
}

func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode maps the error type to a response status. Unknown types
// are server errors.
func (e *APIError) HTTPStatusCode() int {
	if code, ok := statusByType[e.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

func (e *APIError) WithCause(err error) *APIError {
	e.Cause = err
	return e
}

// AsAPIError finds the first APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
