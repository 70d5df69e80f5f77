package lokacall

import (
	"errors"
	"fmt"
)

// Code is an abstract, transport-agnostic status code. Concrete transport
// adapters (gRPC, HTTP, ...) live outside this module and map their own
// failure types onto Code at the primitive-callable boundary.
type Code int

const (
	// OK is never carried by a failure; it exists so Code has a zero-ish
	// "no error" member for adapters that want one.
	OK Code = iota
	// Unknown is the bucket for any failure that does not carry a
	// recognized code. Classify never returns an error for this case: a
	// bare Go error always classifies to Unknown.
	Unknown
	Unavailable
	DeadlineExceeded
	FailedPrecondition
	InvalidArgument
	NotFound
	AlreadyExists
	ResourceExhausted
	Aborted
	Internal
	Canceled
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "Unknown"
	case Unavailable:
		return "Unavailable"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case FailedPrecondition:
		return "FailedPrecondition"
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Aborted:
		return "Aborted"
	case Internal:
		return "Internal"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Coder is implemented by failures that carry a recognized Code. A
// primitive callable's failure that does not implement Coder is treated as
// Unknown by Classify.
type Coder interface {
	Code() Code
}

// Classify extracts the abstract Code carried by err. A nil error
// classifies to OK; any non-nil error without a recognized code classifies
// to Unknown. Order matters the same way it does in the teacher's
// apierr.IsRetryable: ApiException is checked before the generic Coder
// interface so a wrapped ApiException always keeps its original code.
func Classify(err error) Code {
	if err == nil {
		return OK
	}
	if ae, ok := AsApiException(err); ok {
		return ae.Code
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return Unknown
}

// ApiException is the single failure type surfaced by Call and
// FutureCall. It carries the abstract code, a human-readable cause, and
// the underlying failure (if any) for errors.Unwrap / errors.Is chains.
type ApiException struct {
	Code  Code
	Cause error
}

func (e *ApiException) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lokacall: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("lokacall: %s", e.Code)
}

// Unwrap exposes the underlying failure for errors.Is/errors.As.
func (e *ApiException) Unwrap() error {
	return e.Cause
}

// NewApiException wraps err as an ApiException carrying code. When err is
// nil, the exception carries only the code.
func NewApiException(code Code, err error) *ApiException {
	return &ApiException{Code: code, Cause: err}
}

// AsApiException reports whether err is (or wraps) an *ApiException.
func AsApiException(err error) (*ApiException, bool) {
	var ae *ApiException
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ValidationException is raised synchronously by the paging decorator on
// precondition violations of expandToFixedSizeCollection, and by bundling
// on precondition violations such as submitting after factory Close.
type ValidationException struct {
	Message string
}

func (e *ValidationException) Error() string {
	return "lokacall: validation: " + e.Message
}

// NewValidationException builds a ValidationException with a formatted
// message.
func NewValidationException(format string, args ...any) *ValidationException {
	return &ValidationException{Message: fmt.Sprintf(format, args...)}
}
