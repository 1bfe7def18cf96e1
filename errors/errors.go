// Package errors provides standardized error handling patterns for RefreshKit components.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping and classification across the refresh pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass buckets errors by how callers should react to them.
type ErrorClass int

const (
	// ErrorTransient marks temporary failures worth retrying.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid marks failures caused by bad input or configuration.
	ErrorInvalid
	// ErrorFatal marks unrecoverable failures that must stop processing.
	ErrorFatal
)

var classNames = [...]string{"transient", "invalid", "fatal"}

// String returns the log-friendly name of the class.
func (ec ErrorClass) String() string {
	if ec >= 0 && int(ec) < len(classNames) {
		return classNames[ec]
	}
	return "unknown"
}

// Sentinel errors shared across the pipeline.
var (
	// Component lifecycle
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Connection and transport
	ErrNoConnection   = errors.New("no connection available")
	ErrConnectionLost = errors.New("connection lost")
	ErrTimeout        = errors.New("request timeout")
	ErrNetwork        = errors.New("network error")

	// Refresh pipeline. ErrCacheMiss and ErrNoFallback are normal
	// signals on the read path, not faults; they exist so callers can
	// distinguish "nothing there yet" from a failed lookup.
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCacheMiss          = errors.New("cache miss")
	ErrNoFallback         = errors.New("no fallback snapshot recorded")

	// Storage and persistence
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDataCorrupted      = errors.New("data corrupted")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrKeyNotFound        = errors.New("key not found")

	// Data processing
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// StatusError reports a non-success status returned by an upstream metrics
// endpoint. The numeric status drives retry policy: client-fault statuses
// (4xx) indicate the request itself is wrong and retrying it is never
// useful; server-fault statuses indicate upstream trouble that may clear.
type StatusError struct {
	Status int
}

// NewStatusError creates a StatusError for the given upstream status code.
func NewStatusError(status int) *StatusError {
	return &StatusError{Status: status}
}

func (se *StatusError) Error() string {
	return fmt.Sprintf("server error: status %d", se.Status)
}

// ClientFault reports whether the status indicates a fault in the request (4xx).
func (se *StatusError) ClientFault() bool {
	return se.Status >= 400 && se.Status < 500
}

// ServerFault reports whether the status indicates a fault in the upstream (5xx).
func (se *StatusError) ServerFault() bool {
	return se.Status >= 500
}

// IsClientFault checks whether err carries a client-fault upstream status.
func IsClientFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ClientFault()
}

// IsServerFault checks whether err carries a server-fault upstream status.
func IsServerFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ServerFault()
}

// ClassifiedError pins a class onto an error along with where it happened.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap exposes the wrapped error for errors.Is and errors.As.
func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// classOf extracts the pinned class when err carries one.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// isAny reports whether err matches any of the targets via errors.Is.
func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// containsAny reports whether s contains any of the patterns.
func containsAny(s string, patterns ...string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}

	// Upstream status codes: server faults may clear, client faults never do
	var se *StatusError
	if errors.As(err, &se) {
		return !se.ClientFault()
	}

	if isAny(err,
		ErrTimeout, ErrNetwork, ErrConnectionLost, ErrStorageUnavailable,
		ErrCircuitOpen, context.DeadlineExceeded, context.Canceled) {
		return true
	}

	// Unclassified errors fall back to message sniffing
	return containsAny(strings.ToLower(err.Error()),
		"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry")
}

// IsFatal reports whether err should stop processing outright.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}

	if isAny(err, ErrInvalidConfig, ErrMissingConfig, ErrDataCorrupted) {
		return true
	}

	return containsAny(strings.ToLower(err.Error()),
		"fatal", "panic", "corrupted", "invalid config", "missing config",
		"out of memory", "disk full")
}

// IsInvalid reports whether err stems from bad input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}

	// A client-fault status means the request itself was malformed
	if IsClientFault(err) {
		return true
	}

	return isAny(err, ErrInvalidData, ErrParsingFailed)
}

// Classify returns the error class for an error. Unknown errors classify
// as transient so callers err on the side of retrying.
func Classify(err error) ErrorClass {
	switch {
	case IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap adds "component.method: action failed" context around err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// wrapClass wraps err with standard context and pins its classification.
func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ErrorInvalid, err, component, method, action)
}
