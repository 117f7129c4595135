package vfs

import "errors"

// Error represents a domain error from virtual-filesystem operations.
//
// These are business logic errors (entry not found, quota exceeded, etc.)
// as opposed to infrastructure errors (network failure, disk error).
// Transport layers translate Error codes to protocol-specific status codes
// without inspecting message text.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the entry path or name related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a domain error.
type ErrorCode int

const (
	// ErrNotFound indicates the entry/parent/code/file is absent or not
	// visible to the caller. Owner mismatches surface as ErrNotFound so the
	// existence of another user's entries is never revealed.
	ErrNotFound ErrorCode = iota

	// ErrPermissionDenied indicates an explicit owner mismatch on an
	// operation where hiding existence is not required.
	ErrPermissionDenied

	// ErrConflict indicates a name collision that survived retry, or a
	// concurrent-state conflict detected at the storage layer.
	ErrConflict

	// ErrValidation indicates invalid parameters: bad name, non-folder
	// parent/target, moving an entry into itself or its own subtree.
	ErrValidation

	// ErrInvalidState indicates the entry is not in a state the operation
	// accepts, e.g. restoring an entry that is not trashed.
	ErrInvalidState

	// ErrQuotaExceeded indicates the admission check failed: accepting the
	// bytes would push the owner over the plan's storage limit.
	ErrQuotaExceeded

	// ErrObjectStore indicates the underlying byte-store call failed.
	// Surfaced as a retryable internal error, never silently swallowed.
	ErrObjectStore
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrPermissionDenied:
		return "PERMISSION_DENIED"
	case ErrConflict:
		return "CONFLICT"
	case ErrValidation:
		return "VALIDATION_ERROR"
	case ErrInvalidState:
		return "INVALID_STATE"
	case ErrQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case ErrObjectStore:
		return "OBJECT_STORE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found domain error.
func IsNotFound(err error) bool { return IsCode(err, ErrNotFound) }

// IsConflict reports whether err is a conflict domain error.
func IsConflict(err error) bool { return IsCode(err, ErrConflict) }

// IsQuotaExceeded reports whether err is a quota admission failure.
func IsQuotaExceeded(err error) bool { return IsCode(err, ErrQuotaExceeded) }

// notFound builds the standard not-found error for an entry path or name.
func notFound(message, path string) *Error {
	return &Error{Code: ErrNotFound, Message: message, Path: path}
}

// validation builds a validation error.
func validation(message, path string) *Error {
	return &Error{Code: ErrValidation, Message: message, Path: path}
}
