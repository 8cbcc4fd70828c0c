package reverrors

import (
	"errors"
	"fmt"

	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// Error codes covering the revocation subsystem failure taxonomy
const (
	// CodeNotFound — a referenced definition/list/key/credential definition
	// is missing. Non-retryable.
	CodeNotFound = "REVOCATION_NOT_FOUND"
	// CodeAlreadyExists — the external registration backend reports the
	// object as already registered. Non-retryable; callers may treat it as
	// an idempotent success candidate.
	CodeAlreadyExists = "REVOCATION_ALREADY_EXISTS"
	// CodeRegistryFull — the registry's capacity is exhausted. Non-retryable
	// at the allocation layer; triggers rotation.
	CodeRegistryFull = "REVOCATION_REGISTRY_FULL"
	// CodeTransient — any other external or native-library failure.
	// Retryable.
	CodeTransient = "REVOCATION_TRANSIENT"
	// CodeConflict — optimistic-concurrency mismatch that survived the retry
	// bound of the batched publish. Fatal.
	CodeConflict = "REVOCATION_CONFLICT"
	// CodeIntegrity — tails content hash mismatch. Non-retryable; the
	// corrupt data is discarded immediately.
	CodeIntegrity = "REVOCATION_INTEGRITY"
)

// RevocationError is the typed error carried through the revocation subsystem
type RevocationError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RevocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RevocationError) Unwrap() error {
	return e.Cause
}

// New creates a new RevocationError
func New(code, message string, cause error) *RevocationError {
	return &RevocationError{Code: code, Message: message, Cause: cause}
}

// Newf creates a new RevocationError with a formatted message
func Newf(code string, format string, args ...interface{}) *RevocationError {
	return &RevocationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code of err, or CodeTransient when err is not
// a RevocationError (unknown failures default to retryable).
func CodeOf(err error) string {
	var revErr *RevocationError
	if errors.As(err, &revErr) {
		return revErr.Code
	}
	if errors.Is(err, storage.ErrNotFound) {
		return CodeNotFound
	}
	if errors.Is(err, storage.ErrDuplicate) {
		return CodeAlreadyExists
	}
	return CodeTransient
}

func IsNotFound(err error) bool      { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }
func IsRegistryFull(err error) bool  { return CodeOf(err) == CodeRegistryFull }
func IsConflict(err error) bool      { return CodeOf(err) == CodeConflict }
func IsIntegrity(err error) bool     { return CodeOf(err) == CodeIntegrity }

// ShouldRetry classifies err per the failure taxonomy: only not-found,
// already-exists, registry-full, conflict and integrity failures are
// non-retryable; everything else is considered transient.
func ShouldRetry(err error) bool {
	switch CodeOf(err) {
	case CodeNotFound, CodeAlreadyExists, CodeRegistryFull, CodeConflict, CodeIntegrity:
		return false
	default:
		return true
	}
}
