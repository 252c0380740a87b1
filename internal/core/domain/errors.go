package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form KP-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "KP-LINK-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Preview link errors (LINK)
// ============================================================================

var (
	// ErrLinkNotFound indicates the requested preview link does not exist.
	ErrLinkNotFound = NewDomainError("KP-LINK-4040", "preview link not found")

	// ErrLinkExpired indicates the preview link is past its expiry.
	ErrLinkExpired = NewDomainError("KP-LINK-4041", "preview link expired")

	// ErrLinkRevoked indicates the preview link was revoked.
	ErrLinkRevoked = NewDomainError("KP-LINK-4042", "preview link revoked")

	// ErrLinkValidation indicates link input failed validation.
	ErrLinkValidation = NewDomainError("KP-LINK-4001", "preview link validation failed")

	// ErrLinkVersionConflict indicates the link changed since it was read.
	ErrLinkVersionConflict = NewDomainError("KP-LINK-4091", "version conflict, please retry")
)

// ============================================================================
// Token errors (TOKN)
// ============================================================================

var (
	// ErrTokenMalformed indicates the token format is invalid.
	ErrTokenMalformed = NewDomainError("KP-TOKN-4000", "malformed token")

	// ErrTokenInvalid indicates no live link matches the token.
	ErrTokenInvalid = NewDomainError("KP-TOKN-4010", "invalid token")
)

// ============================================================================
// Authentication errors (AUTH)
// ============================================================================

var (
	// ErrAPIKeyMissing indicates no API key was provided.
	ErrAPIKeyMissing = NewDomainError("KP-AUTH-4010", "api key not provided")

	// ErrAPIKeyInvalid indicates the API key is invalid or does not exist.
	ErrAPIKeyInvalid = NewDomainError("KP-AUTH-4011", "invalid api key")

	// ErrAPIKeyDisabled indicates the API key has been disabled.
	ErrAPIKeyDisabled = NewDomainError("KP-AUTH-4012", "api key disabled")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = NewDomainError("KP-AUTH-4030", "permission denied")

	// ErrAPIKeyValidation indicates API key configuration is invalid.
	ErrAPIKeyValidation = NewDomainError("KP-AUTH-4001", "api key validation failed")
)

// ============================================================================
// System errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("KP-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("KP-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("KP-SYS-5030", "service unavailable")

	// ErrEntropyUnavailable indicates the system random source failed.
	ErrEntropyUnavailable = NewDomainError("KP-SYS-5031", "entropy unavailable")

	// ErrSecretUnavailable indicates the signing secret could not be read or created.
	ErrSecretUnavailable = NewDomainError("KP-SYS-5032", "secret unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("KP-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("KP-SYS-4290", "too many requests")
)

// ============================================================================
// Argument errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("KP-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("KP-ARG-1002", "missing required argument")
)
