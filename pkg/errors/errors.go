// Package errors provides the standardized error type used across the PlayHT client.
//
// Error is the base error type. It captures the failure Kind (the taxonomy every
// caller can switch on), the component and operation that produced it, and the
// provider-facing fields (code, HTTP status) that one-shot callers receive.
// It implements the error, Unwrap and Is interfaces for seamless integration
// with Go's errors package.
//
// Usage:
//
//	err := errors.New(errors.KindAuth, "lease", "Acquire", cause)
//	err = err.WithStatusCode(401).WithCode("UNAUTHORIZED")
//	if errors.Is(err, errors.ErrAuth) { ... }
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an Error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindAuth
	KindExpiredLease
	KindTransport
	KindProtocol
	KindInvalidEngine
	KindInvalidOption
	KindMaxRetriesExceeded
	KindUnsplittableInput
	KindCanceled
	KindProvider
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindAuth:               "auth",
	KindExpiredLease:       "expired_lease",
	KindTransport:          "transport",
	KindProtocol:           "protocol",
	KindInvalidEngine:      "invalid_engine",
	KindInvalidOption:      "invalid_option",
	KindMaxRetriesExceeded: "max_retries_exceeded",
	KindUnsplittableInput:  "unsplittable_input",
	KindCanceled:           "canceled",
	KindProvider:           "provider",
}

// String returns the kind identifier.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinel values for errors.Is matching by kind.
var (
	ErrAuth               = &Error{Kind: KindAuth}
	ErrExpiredLease       = &Error{Kind: KindExpiredLease}
	ErrTransport          = &Error{Kind: KindTransport}
	ErrProtocol           = &Error{Kind: KindProtocol}
	ErrInvalidEngine      = &Error{Kind: KindInvalidEngine}
	ErrInvalidOption      = &Error{Kind: KindInvalidOption}
	ErrMaxRetriesExceeded = &Error{Kind: KindMaxRetriesExceeded}
	ErrUnsplittableInput  = &Error{Kind: KindUnsplittableInput}
	ErrCanceled           = &Error{Kind: KindCanceled}
	ErrProvider           = &Error{Kind: KindProvider}
)

// Error is a structured error that provides consistent context about where
// and why a failure occurred.
type Error struct {
	// Kind is the taxonomy entry for this failure.
	Kind Kind

	// Component identifies the package that produced the error (e.g. "lease", "streaming").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Message is the human-readable failure description.
	Message string

	// Code is the provider-specific error code, if any.
	Code string

	// StatusCode is an optional HTTP or gRPC-derived status code.
	StatusCode int

	// StatusMessage is the status text matching StatusCode.
	StatusMessage string

	// Cause is the underlying error, if any.
	Cause error
}

// New creates an Error with the given kind, component, operation and cause.
// The message defaults to the cause's text.
func New(kind Kind, component, operation string, cause error) *Error {
	e := &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// Newf creates an Error without a cause from a formatted message.
func Newf(kind Kind, component, operation, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Error returns a human-readable representation of the error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Component != "" || e.Operation != "" {
		fmt.Fprintf(&b, "[%s] %s", e.Component, e.Operation)
	} else {
		b.WriteString(e.Kind.String())
	}

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d", e.StatusCode)
		if e.StatusMessage != "" {
			b.WriteString(" " + e.StatusMessage)
		}
		b.WriteString(")")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}

	switch {
	case e.Message != "":
		b.WriteString(": " + e.Message)
	case e.Cause != nil:
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithStatusCode sets the status code and its standard text.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	if e.StatusMessage == "" {
		e.StatusMessage = http.StatusText(code)
	}
	return e
}

// WithStatusMessage overrides the status text.
func (e *Error) WithStatusMessage(msg string) *Error {
	e.StatusMessage = msg
	return e
}

// WithCode sets the provider error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithMessage sets the human-readable message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Normalize converts any error into the uniform *Error shape. Errors already
// carrying an *Error are returned as-is; context and gRPC status errors are
// mapped to their closest kind. Plain errors are KindUnknown.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Message: err.Error(), Cause: err}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return fromGRPCStatus(st, err)
	}

	return &Error{Kind: KindUnknown, Message: err.Error(), Cause: err}
}

// fromGRPCStatus maps a gRPC status to an Error. Codes without a closer
// kind, Unknown included, are transport failures.
func fromGRPCStatus(st *status.Status, cause error) *Error {
	kind := KindTransport
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = KindAuth
	case codes.Canceled, codes.DeadlineExceeded:
		kind = KindCanceled
	case codes.InvalidArgument:
		kind = KindInvalidOption
	}
	return &Error{
		Kind:          kind,
		Message:       st.Message(),
		Code:          st.Code().String(),
		StatusCode:    grpcToHTTP(st.Code()),
		StatusMessage: st.Code().String(),
		Cause:         cause,
	}
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether a failure of this kind may succeed on retry.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransport:
		return true
	case KindProvider:
		var e *Error
		if stderrors.As(err, &e) {
			return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
		}
	}
	return false
}
