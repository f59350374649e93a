package buildio

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
)

// Common errors returned by buildio operations
var (
	// ErrInterrupted indicates the process-wide interrupt flag was raised or
	// the caller's context ended while blocked
	ErrInterrupted = errors.New("buildio: interrupted")

	// ErrRedirectLimitExceeded indicates a redirect chain was longer than the
	// configured hop budget
	ErrRedirectLimitExceeded = errors.New("buildio: too many redirects")

	// ErrNotFound indicates the remote or local resource does not exist
	ErrNotFound = errors.New("buildio: not found")

	// ErrForbidden indicates the server refused access to the resource
	ErrForbidden = errors.New("buildio: forbidden")

	// ErrEngineClosed indicates the transfer engine was closed
	ErrEngineClosed = errors.New("buildio: transfer engine closed")

	// ErrSourceClosed indicates the consumer closed a source before its end
	ErrSourceClosed = errors.New("buildio: source closed")

	// ErrStalled indicates a body delivered no data within the stall timeout
	ErrStalled = errors.New("buildio: transfer stalled")

	// ErrUnsupportedScheme indicates a URL scheme the engine cannot retrieve
	ErrUnsupportedScheme = errors.New("buildio: unsupported URL scheme")

	// ErrUnsupportedEncoding indicates a content coding with no registered decoder
	ErrUnsupportedEncoding = errors.New("buildio: unsupported content encoding")

	// ErrCloneUnsupported indicates clone flags were requested on a platform
	// without clone(2)
	ErrCloneUnsupported = errors.New("buildio: clone flags are only supported on Linux")

	// ErrCloneFlagsIncompatible indicates clone flags that would share the
	// parent's address space
	ErrCloneFlagsIncompatible = errors.New("buildio: CLONE_VM is not supported")

	// ErrKillRoot indicates an attempt to kill every process of uid 0
	ErrKillRoot = errors.New("buildio: refusing to kill all processes of root")

	// ErrCacheDisabled indicates a binary cache is temporarily disabled after
	// a failure
	ErrCacheDisabled = errors.New("buildio: binary cache disabled")

	// ErrNoSuchFile indicates a file is absent from a binary cache
	ErrNoSuchFile = errors.New("buildio: no such file in binary cache")

	// ErrTimeout indicates an operation exceeded its timeout
	ErrTimeout = errors.New("buildio: timeout")
)

// OpError represents an operating system failure during a buildio operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the program, file, pid or URL involved in the operation
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("buildio %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// TransferErrorKind distinguishes when a transfer failed
type TransferErrorKind int

const (
	// KindSetup is a failure before any body byte was handed to the caller
	KindSetup TransferErrorKind = iota
	// KindDeferred is a failure discovered while the body was being read
	KindDeferred
	// KindRedirectLimit is a redirect chain longer than the hop budget
	KindRedirectLimit
)

// String returns the string representation of a TransferErrorKind
func (k TransferErrorKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindDeferred:
		return "deferred"
	case KindRedirectLimit:
		return "redirect-limit"
	default:
		return "unknown"
	}
}

// TransferError is returned by the transfer engine. Setup and redirect-limit
// failures come from Download itself; deferred failures come from reading
// the returned Source.
type TransferError struct {
	// Kind tells when the failure was discovered
	Kind TransferErrorKind
	// URL is the URL being retrieved when the failure happened
	URL string
	// Status is the final HTTP status, or 0 if none was received
	Status int
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("buildio %s transfer failure for %q (HTTP %d): %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("buildio %s transfer failure for %q: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is matches ErrNotFound and ErrForbidden against the HTTP status
func (e *TransferError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.NotFound()
	case ErrForbidden:
		return e.Forbidden()
	}
	return false
}

// NotFound reports whether the resource does not exist
func (e *TransferError) NotFound() bool {
	if e.Kind != KindSetup {
		return false
	}
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone || errors.Is(e.Err, fs.ErrNotExist)
}

// Forbidden reports whether access to the resource was refused
func (e *TransferError) Forbidden() bool {
	if e.Kind != KindSetup {
		return false
	}
	return e.Status == http.StatusForbidden || errors.Is(e.Err, fs.ErrPermission)
}

// IsSetupFailure reports whether err is a transfer failure raised before any
// body was streamed
func IsSetupFailure(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Kind == KindSetup
}

// IsDeferredFailure reports whether err is a transfer failure discovered
// while reading a body
func IsDeferredFailure(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Kind == KindDeferred
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
