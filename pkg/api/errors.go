package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an APIError. It decides the HTTP status of the
// response and whether a failure may be retried with another API key.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// HTTPStatus returns the response status for the error type. Upstream
// model failures map to 502 since the client request itself was fine.
func (t ErrorType) HTTPStatus() int {
	switch t {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrorTypeModelError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DiagnosticPrefix starts every diagnostic line written into a chat stream,
// so a client can separate it from model text.
const DiagnosticPrefix = "\n[Stream Error] "

// APIError is the error body returned by the chat endpoints and the error
// value passed between provider, engine and transport.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	s := string(e.Type) + ": " + e.Message
	if e.Param != "" {
		s += fmt.Sprintf(" (param: %s)", e.Param)
	}
	return s
}

// ErrorResponse is the JSON envelope {"error": {...}}.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, msg string) *APIError {
	return &APIError{Type: t, Message: msg}
}

// NewInvalidRequestError reports a bad request field named by param.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }

// NewModelError reports a failure of the model backend.
func NewModelError(message string) *APIError { return newError(ErrorTypeModelError, message) }

// NewTooManyRequestsError reports a rate limit or an exhausted quota.
func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

// quotaMarkers catch quota failures that arrive as untyped text, for example
// a stream error event with no status code.
var quotaMarkers = []string{"resource_exhausted", "quota", "rate limit", "rate_limit", "too many requests"}

// IsQuotaError reports whether err means the current API key ran out of
// quota or hit a rate limit. Only these errors move the credential pool.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Type == ErrorTypeTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
