// Package errdefs defines the error categories shared by the relay,
// signaling and transfer layers. Transports translate wire-level failures
// into these categories so the engine can decide between retrying and
// giving up without inspecting error strings.
package errdefs

import (
	"errors"
	"fmt"
)

// Category is the machine-checkable class of a failure.
type Category string

const (
	CategoryNotFound        Category = "not_found"
	CategoryInvalidInput    Category = "invalid_input"
	CategoryIOFailure       Category = "io_failure"
	CategoryHashMismatch    Category = "hash_mismatch"
	CategoryNetworkFailure  Category = "network_failure"
	CategoryExhausted       Category = "exhausted"
	CategoryManifestCorrupt Category = "manifest_corrupt"
)

// Reason refines NotFound where the distinction changes client behavior:
// an unknown transfer means "give up", a pending chunk means "wait and retry".
type Reason string

const (
	ReasonTransferUnknown Reason = "transfer_unknown"
	ReasonChunkPending    Reason = "chunk_pending"
	ReasonPairCodeUnknown Reason = "pair_code_unknown"
)

// Error carries a category, an optional reason and a wrapped cause.
type Error struct {
	Category Category
	Reason   Reason
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes two taxonomy errors match when their categories agree, so
// errors.Is(err, errdefs.NotFound("", "")) style checks work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func NotFound(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Category: CategoryNotFound, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Category: CategoryInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func IOFailure(cause error, format string, args ...interface{}) *Error {
	return &Error{Category: CategoryIOFailure, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func HashMismatch(format string, args ...interface{}) *Error {
	return &Error{Category: CategoryHashMismatch, Message: fmt.Sprintf(format, args...)}
}

func NetworkFailure(cause error, format string, args ...interface{}) *Error {
	return &Error{Category: CategoryNetworkFailure, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Exhausted(cause error, format string, args ...interface{}) *Error {
	return &Error{Category: CategoryExhausted, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func ManifestCorrupt(cause error, format string, args ...interface{}) *Error {
	return &Error{Category: CategoryManifestCorrupt, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CategoryOf extracts the category of err, or empty when err carries none.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// ReasonOf extracts the NotFound reason of err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func IsNotFound(err error) bool     { return CategoryOf(err) == CategoryNotFound }
func IsInvalidInput(err error) bool { return CategoryOf(err) == CategoryInvalidInput }
func IsHashMismatch(err error) bool { return CategoryOf(err) == CategoryHashMismatch }
func IsExhausted(err error) bool    { return CategoryOf(err) == CategoryExhausted }

// IsRetryable reports whether err is a transient failure worth another
// attempt. Only network-level failures qualify; validation errors and
// not-found conditions are terminal.
func IsRetryable(err error) bool {
	return CategoryOf(err) == CategoryNetworkFailure
}
