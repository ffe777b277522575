package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeAmountMismatch      Code = "AMOUNT_MISMATCH"
	CodePreconditionFailed  Code = "PRECONDITION_FAILED"
	CodeIdempotency         Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit           Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

// Metadata is the HTTP face of a Code. With ClientMessage set the caller's
// message replaces PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ClientMessage  bool
}

func rejected(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, ClientMessage: true}
}

func (m Metadata) withDetails() Metadata {
	m.DetailsAllowed = true
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:          rejected(http.StatusBadRequest, "validation failed").withDetails(),
	CodeUnauthorized:        rejected(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:           rejected(http.StatusForbidden, "access denied"),
	CodeNotFound:            rejected(http.StatusNotFound, "resource not found"),
	CodeConflict:            rejected(http.StatusConflict, "conflict detected"),
	CodeStateConflict:       rejected(http.StatusUnprocessableEntity, "state transition disallowed").withDetails(),
	CodeInvalidTransition:   rejected(http.StatusBadRequest, "invalid transition").withDetails(),
	CodeInsufficientBalance: rejected(http.StatusBadRequest, "insufficient balance").withDetails(),
	CodeAmountMismatch:      rejected(http.StatusBadRequest, "amount does not match order total").withDetails(),
	CodePreconditionFailed:  rejected(http.StatusBadRequest, "precondition failed").withDetails(),
	CodeIdempotency:         rejected(http.StatusConflict, "idempotency key reused").withDetails(),
	CodeRateLimit:           rejected(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

// MetadataFor treats unknown codes as internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsClientFacing reports whether the caller-supplied message is safe to surface.
func IsClientFacing(code Code) bool {
	meta, ok := metadataByCode[code]
	return ok && meta.ClientMessage
}

// Error is a coded failure. The message is what a client may see; the cause
// stays in logs.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to a coded error. A nil cause yields New(code, message).
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
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

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := string(e.code) + ": " + e.message
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost coded error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func CodeOf(err error) Code {
	return As(err).Code()
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
