// Package domainerrors carries the machine-readable error codes that services
// return to callers. Stores speak in sentinel errors (pkg/platform/sentinel);
// services translate those into a Code plus a human-readable message so
// transports can map them without inspecting strings.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeBadRequest             Code = "bad_request"
	CodeInvalidInput           Code = "invalid_input"
	CodeValidation             Code = "validation_error"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeInvalidStateTransition Code = "invalid_state_transition"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeTooManyAttempts        Code = "too_many_attempts"
	CodeCreationFailed         Code = "creation_failed"
	CodeCompensationFailed     Code = "compensation_failed"
	CodeExternalUnavailable    Code = "external_unavailable"
	CodeUnauthorized           Code = "unauthorized"
	CodeForbidden              Code = "forbidden"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal_error"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Error is the structured error returned by services.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Meta    map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, New(code, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New builds an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation builds a validation error listing every failing field.
func Validation(msg string, fields []FieldError) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

// WithMeta returns a copy of err carrying additional key/value context
// (e.g. current_state, attempted_event). Non-domain errors are wrapped as internal.
func WithMeta(err error, kv ...string) error {
	var de *Error
	if !errors.As(err, &de) {
		de = &Error{Code: CodeInternal, Message: "internal error", Err: err}
	}
	out := *de
	out.Meta = make(map[string]string, len(de.Meta)+len(kv)/2)
	for k, v := range de.Meta {
		out.Meta[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Meta[kv[i]] = kv[i+1]
	}
	return &out
}

// HasCode reports whether any Error in err's tree carries code. Joined errors
// are searched too.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// Is is an alias for HasCode kept for handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or a generic one.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// FieldsOf returns the field errors carried by err, if any.
func FieldsOf(err error) []FieldError {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// MetaOf returns the metadata carried by err, if any.
func MetaOf(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Meta
	}
	return nil
}

// ToHTTPStatus maps a code onto an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeValidation, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeInvalidStateTransition, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyAttempts:
		return http.StatusTooManyRequests
	case CodeCreationFailed, CodeCompensationFailed:
		return http.StatusBadGateway
	case CodeExternalUnavailable:
		return http.StatusServiceUnavailable
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
