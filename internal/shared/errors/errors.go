package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeInvalidID          ErrorType = "INVALID_ID_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeDuplicateKey       ErrorType = "DUPLICATE_KEY_ERROR"
	ErrorTypeAuthentication     ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeHashing            ErrorType = "HASHING_ERROR"
	ErrorTypeBackendUnavailable ErrorType = "BACKEND_UNAVAILABLE"
	ErrorTypeTimeout            ErrorType = "TIMEOUT_ERROR"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

// Sentinel errors, one per kind. AppErrors of a kind match their sentinel via errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidID          = errors.New("invalid identifier")
	ErrNotFound           = errors.New("resource not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrAuth               = errors.New("not authenticated")
	ErrHashing            = errors.New("credential hashing failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout            = errors.New("request timed out")
	ErrInternal           = errors.New("internal server error")
)

var sentinels = map[ErrorType]error{
	ErrorTypeValidation:         ErrValidation,
	ErrorTypeInvalidID:          ErrInvalidID,
	ErrorTypeNotFound:           ErrNotFound,
	ErrorTypeDuplicateKey:       ErrDuplicateKey,
	ErrorTypeAuthentication:     ErrAuth,
	ErrorTypeHashing:            ErrHashing,
	ErrorTypeBackendUnavailable: ErrBackendUnavailable,
	ErrorTypeTimeout:            ErrTimeout,
	ErrorTypeInternal:           ErrInternal,
}

// publicMessages are the only texts that ever reach a client.
var publicMessages = map[ErrorType]string{
	ErrorTypeValidation:         "invalid input",
	ErrorTypeInvalidID:          "invalid identifier",
	ErrorTypeNotFound:           "not found",
	ErrorTypeDuplicateKey:       "already exists",
	ErrorTypeAuthentication:     "not authenticated",
	ErrorTypeHashing:            "internal server error",
	ErrorTypeBackendUnavailable: "service unavailable",
	ErrorTypeTimeout:            "request timed out",
	ErrorTypeInternal:           "internal server error",
}

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of this error's kind.
func (e *AppError) Is(target error) bool {
	if s, ok := sentinels[e.Type]; ok && s == target {
		return true
	}
	return false
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error constructors

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewInvalidIDError reports an identifier that cannot be parsed into the backend's id type.
func NewInvalidIDError(raw string) *AppError {
	return NewAppError(ErrorTypeInvalidID, "malformed identifier", http.StatusBadRequest).
		WithDetail("id", raw)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewDuplicateKeyError creates a uniqueness violation error
func NewDuplicateKeyError(message string) *AppError {
	return NewAppError(ErrorTypeDuplicateKey, message, http.StatusConflict)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized)
}

// NewHashingError creates a credential hashing error
func NewHashingError(cause error) *AppError {
	return NewAppError(ErrorTypeHashing, "password hashing failed", http.StatusInternalServerError).
		WithCause(cause)
}

// NewBackendUnavailableError wraps a persistence failure
func NewBackendUnavailableError(operation string, cause error) *AppError {
	return NewAppError(ErrorTypeBackendUnavailable, operation+" failed", http.StatusServiceUnavailable).
		WithCause(cause)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// ValidationError represents validation errors for multiple fields
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
}

// NewValidationErrors creates a new validation errors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
	return ve
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to an AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}

	appErr := NewValidationError(ve.Error())
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// Helper functions for common error scenarios

// KindOf returns the ErrorType of err, ErrorTypeInternal when it carries none.
// An expired request deadline is a timeout whatever layer wrapped it; a
// cancelled one counts as the backend being unavailable.
func KindOf(err error) ErrorType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeBackendUnavailable
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return ErrorTypeValidation
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ErrorTypeInternal
}

// StatusCode maps err to the HTTP status returned at the request boundary.
func StatusCode(err error) int {
	kind := KindOf(err)
	if kind == ErrorTypeTimeout {
		return http.StatusGatewayTimeout
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	switch kind {
	case ErrorTypeValidation, ErrorTypeInvalidID:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeDuplicateKey:
		return http.StatusConflict
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe text for err. Causes are never included.
func PublicMessage(err error) string {
	return publicMessages[KindOf(err)]
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var ve *ValidationErrors
	return errors.Is(err, ErrValidation) || errors.As(err, &ve)
}

// IsInvalidID checks if an error is a malformed identifier error
func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

// IsDuplicateKey checks if an error is a uniqueness violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsHashing checks if an error is a hashing error
func IsHashing(err error) bool {
	return errors.Is(err, ErrHashing)
}

// IsBackendUnavailable checks if an error is a persistence connectivity error
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
