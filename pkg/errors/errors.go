package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error class. Handlers and clients
// branch on codes; messages are free to change.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeGatewayDeclined   Code = "PAYMENT_DECLINED"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata fixes, per code, how the HTTP layer renders the error and
// whether a caller gains anything by retrying. DetailsAllowed gates
// whether structured details ever reach the response body.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable bool, public string, details bool) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      retryable,
		PublicMessage:  public,
		DetailsAllowed: details,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        meta(http.StatusBadRequest, false, "validation failed", true),
	CodeUnauthorized:      meta(http.StatusUnauthorized, false, "authentication required", false),
	CodeForbidden:         meta(http.StatusForbidden, false, "access denied", false),
	CodeNotFound:          meta(http.StatusNotFound, false, "resource not found", false),
	CodeConflict:          meta(http.StatusConflict, false, "conflict detected", false),
	CodeStateConflict:     meta(http.StatusUnprocessableEntity, false, "state transition disallowed", true),
	CodeInsufficientStock: meta(http.StatusConflict, false, "insufficient stock", true),
	CodeGatewayDeclined:   meta(http.StatusUnprocessableEntity, false, "payment declined", true),
	CodeIdempotency:       meta(http.StatusConflict, false, "idempotency key reused", true),
	CodeInternal:          meta(http.StatusInternalServerError, true, "internal server error", false),
	CodeDependency:        meta(http.StatusServiceUnavailable, true, "dependency unavailable", true),
}

// MetadataFor resolves a code's rendering rules, treating unknown codes
// as internal so a missing map entry can never leak details.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the one error type services return across package
// boundaries. The fields are unexported so a code is always set.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message while keeping err reachable through
// errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets structured details for codes whose metadata allows
// surfacing them.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the typed error from anywhere in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
