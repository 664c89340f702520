// Package errors provides structured error types and response helpers
// for the panel API.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// Error codes for structured API responses.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeNodeOffline      = "node_offline"
	CodeTransportFailure = "transport_failure"
	CodeDaemonError      = "daemon_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeInternalError    = "internal_error"
)

// APIError represents a structured API error response.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	return &APIError{
		Code:      e.Code,
		Message:   e.Message,
		Details:   details,
		RequestID: e.RequestID,
	}
}

// WithRequestID returns a copy of the error with the request ID set.
func (e *APIError) WithRequestID(requestID string) *APIError {
	return &APIError{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	}
}

// New creates a new APIError with the given code and message.
func New(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// NewInvalidRequest creates a malformed-input error.
func NewInvalidRequest(message string) *APIError {
	return New(CodeInvalidRequest, message)
}

// NewNotFound creates a not found error.
func NewNotFound(message string) *APIError {
	return New(CodeNotFound, message)
}

// NewConflict creates a conflict error.
func NewConflict(message string) *APIError {
	return New(CodeConflict, message)
}

// NewUnauthorized creates an unauthorized error.
func NewUnauthorized(message string) *APIError {
	return New(CodeUnauthorized, message)
}

// NewForbidden creates a forbidden error.
func NewForbidden(message string) *APIError {
	return New(CodeForbidden, message)
}

// NewInternalError creates an internal server error.
func NewInternalError(message string) *APIError {
	return New(CodeInternalError, message)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
//
// The daemon-facing codes deliberately separate "we never dialed"
// (node_offline, 503) from "we dialed and it went wrong" (502).
func (e *APIError) HTTPStatusCode() int {
	switch e.Code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeCapacityExceeded:
		return http.StatusConflict
	case CodeNodeOffline:
		return http.StatusServiceUnavailable
	case CodeTransportFailure, CodeDaemonError:
		return http.StatusBadGateway
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FromDomain maps an error from the store, coordinator, relay or auth
// layers onto its API representation. Unknown errors become opaque
// internal errors so nothing leaks.
func FromDomain(err error) *APIError {
	var validationErr *models.ValidationError
	if stderrors.As(err, &validationErr) {
		return &APIError{
			Code:    CodeInvalidRequest,
			Message: validationErr.Message,
			Details: map[string]any{
				"fields": []ValidationError{{Field: validationErr.Field, Message: validationErr.Message}},
			},
		}
	}

	var relayErr *relay.Error
	if stderrors.As(err, &relayErr) {
		switch {
		case relay.IsNodeOffline(err):
			return New(CodeNodeOffline, relayErr.Message)
		case relay.IsTransportFailure(err):
			return New(CodeTransportFailure, relayErr.Message)
		default:
			// The daemon's own words go back to the operator untouched.
			return New(CodeDaemonError, relayErr.Message)
		}
	}

	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return NewNotFound("resource not found")
	case stderrors.Is(err, store.ErrDuplicate):
		return NewConflict("resource already exists")
	case stderrors.Is(err, store.ErrInUse):
		return NewConflict("resource is in use")
	case stderrors.Is(err, store.ErrAllocationConflict):
		return NewConflict(err.Error())
	case stderrors.Is(err, provision.ErrCapacityExceeded):
		return New(CodeCapacityExceeded, err.Error())
	case stderrors.Is(err, provision.ErrSuspended):
		return NewConflict("server is suspended")
	case stderrors.Is(err, provision.ErrNotSuspended):
		return NewConflict("server is not suspended")
	case stderrors.Is(err, provision.ErrNotProvisioned):
		return NewConflict("server has no provisioned container")
	case stderrors.Is(err, provision.ErrInvalidAction):
		return NewInvalidRequest("invalid power action")
	case stderrors.Is(err, provision.ErrImageNotAllowed):
		return NewInvalidRequest("image not allowed by blueprint")
	case stderrors.Is(err, auth.ErrPermissionDenied):
		return NewForbidden("access denied")
	case stderrors.Is(err, auth.ErrExpiredToken):
		return NewUnauthorized("token has expired")
	case stderrors.Is(err, auth.ErrInvalidToken), stderrors.Is(err, auth.ErrInvalidSignature):
		return NewUnauthorized("invalid token")
	default:
		return NewInternalError("an unexpected error occurred")
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an APIError as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// ValidationError represents a field-level validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of field-level validation errors.
type ValidationErrors []ValidationError

// Add adds a new validation error for a field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// ToAPIError converts validation errors to an APIError with field details.
func (v ValidationErrors) ToAPIError() *APIError {
	if len(v) == 0 {
		return NewInvalidRequest("validation failed")
	}

	mainMessage := v[0].Message
	if len(v) > 1 {
		mainMessage = fmt.Sprintf("%s (and %d more errors)", mainMessage, len(v)-1)
	}

	return &APIError{
		Code:    CodeInvalidRequest,
		Message: mainMessage,
		Details: map[string]any{
			"fields": v,
		},
	}
}
