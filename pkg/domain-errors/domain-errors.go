package domainerrors

import "errors"

// Code is a stable, machine-readable error kind. It is independent of the
// transport; the HTTP layer maps codes to status codes in one place.
type Code string

const (
	// Input
	CodeValidation             Code = "ValidationFailed"
	CodeInvalidReference       Code = "InvalidReference"
	CodeInvalidStateTransition Code = "InvalidStateTransition"
	CodeNotFound               Code = "NotFound"

	// Policy
	CodeUnauthenticated      Code = "Unauthenticated"
	CodeForbidden            Code = "Forbidden"
	CodeInsufficientCredits  Code = "InsufficientCredits"
	CodeLimitReached         Code = "LimitReached"
	CodeBillingNotConfigured Code = "BillingNotConfigured"
	CodeRateLimited          Code = "RateLimited"

	// Dependency
	CodeStorageUnavailable    Code = "StorageUnavailable"
	CodeAssetUnavailable      Code = "AssetUnavailable"
	CodeRenderFailed          Code = "RenderFailed"
	CodeWebhookDeliveryFailed Code = "WebhookDeliveryFailed"

	// Internal
	CodeConflict       Code = "Conflict"
	CodeQuotaExhausted Code = "QuotaExhausted"
	CodeUnknown        Code = "Unknown"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeUnknown when err is not a
// domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsPolicy reports whether the code is a billing or access policy rejection.
// Policy rejections are surfaced to the caller verbatim.
func (c Code) IsPolicy() bool {
	switch c {
	case CodeUnauthenticated, CodeForbidden, CodeInsufficientCredits, CodeLimitReached,
		CodeBillingNotConfigured, CodeRateLimited:
		return true
	}
	return false
}

// IsDependency reports whether the code describes an external collaborator failure.
func (c Code) IsDependency() bool {
	switch c {
	case CodeStorageUnavailable, CodeAssetUnavailable, CodeRenderFailed, CodeWebhookDeliveryFailed:
		return true
	}
	return false
}
