package lmnt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	// KindConfiguration is a missing or invalid client/session setting, or an
	// operation the configured protocol does not support.
	KindConfiguration Kind = iota + 1

	// KindProtocol is a malformed or unexpected frame from the server.
	KindProtocol

	// KindService is an error reported by the service, either through an
	// HTTP status >= 400 or an {"error": ...} frame.
	KindService

	// KindConnection is a transport failure: dial errors, dropped
	// connections, or use of a closed session.
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindProtocol:
		return "protocol error"
	case KindService:
		return "service error"
	case KindConnection:
		return "connection error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Code is the sub-kind of a service error, derived from its status.
type Code string

const (
	CodeUnknown         Code = ""
	CodeBadRequest      Code = "bad_request"
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeUnprocessable   Code = "unprocessable"
	CodeRateLimited     Code = "rate_limited"
	CodeServerError     Code = "server_error"
)

// Classify maps an HTTP status code to a service error Code.
func Classify(status int) Code {
	switch {
	case status == http.StatusBadRequest:
		return CodeBadRequest
	case status == http.StatusUnauthorized:
		return CodeUnauthenticated
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusUnprocessableEntity:
		return CodeUnprocessable
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnknown
	}
}

// Sentinel errors wrapped by *Error.
var (
	// ErrUnexpectedMessage is wrapped by protocol errors for server messages
	// that match no known shape.
	ErrUnexpectedMessage = errors.New("unexpected message received from server")

	// ErrSessionClosed is wrapped by connection errors for operations on a
	// closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected is wrapped by connection errors for sends on a
	// session that has not finished connecting.
	ErrNotConnected = errors.New("session not connected")

	// ErrSessionFinished is wrapped by connection errors for sends after
	// Finish: the input side of the session is closed.
	ErrSessionFinished = errors.New("session finished")

	// ErrMissingAPIKey is wrapped by configuration errors when no API key is
	// configured.
	ErrMissingAPIKey = errors.New("api key is required")
)

// Error is the single error type returned by this package.
type Error struct {
	// Kind is the error classification.
	Kind Kind

	// StatusCode is the HTTP status for service errors. It is zero for
	// errors delivered as stream frames.
	StatusCode int

	// Message is the human readable message.
	Message string

	// Op names the operation that failed, e.g. "Voices.Get".
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("lmnt: ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [status=%d]", e.StatusCode)
	}
	if e.Op != "" {
		fmt.Fprintf(&b, " [%s]", e.Op)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the service sub-kind. It is CodeUnknown for non-service
// errors and for stream error frames.
func (e *Error) Code() Code {
	if e.Kind != KindService {
		return CodeUnknown
	}
	return Classify(e.StatusCode)
}

// IsRateLimit returns true if this is a rate limit error.
func (e *Error) IsRateLimit() bool {
	return e.Code() == CodeRateLimited
}

// IsServerError returns true if this is a server-side error.
func (e *Error) IsServerError() bool {
	return e.Code() == CodeServerError
}

// Retryable returns true if the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// AsError extracts *Error from an error.
//
// Example:
//
//	if e, ok := lmnt.AsError(err); ok && e.Code() == lmnt.CodeNotFound {
//	    // voice does not exist
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func configError(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

func protocolError(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

func connectionError(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}
