package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int          `json:"status"`
	Details []FieldError `json:"details,omitempty"`
	Err     error        `json:"-"`
}

// FieldError names one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned sentinels still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Internal wraps err as an INTERNAL_ERROR with the given message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}

// Validation wraps err as a VALIDATION_ERROR. Failures reported by
// go-playground/validator are listed per field in Details.
func Validation(err error, message string) *Error {
	appErr := Wrap(err, ErrValidation.Code, ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		appErr.Details = make([]FieldError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			appErr.Details = append(appErr.Details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
	}
	return appErr
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials     = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount        = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden              = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrAdmissionPrecondition  = New("ADMISSION_PRECONDITION_FAILED", http.StatusBadRequest, "application must be approved and not yet admitted")
	ErrUnsupportedExport      = New("UNSUPPORTED_EXPORT_FORMAT", http.StatusBadRequest, "unsupported export format")
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrEmailTransportDisabled = New("EMAIL_DISABLED", http.StatusServiceUnavailable, "email transport not configured")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
