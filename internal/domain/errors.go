package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation errors (VALIDATION_*) - caught before any network call
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"

	// Envelope errors (ENVELOPE_*) - failing stage carried in Details["stage"]
	ErrorCodeEnvelopeFailed ErrorCode = "ENVELOPE_FAILED"

	// Integrity errors
	ErrorCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// Payout lifecycle errors (PAYOUT_*)
	ErrorCodeDuplicateCRN   ErrorCode = "PAYOUT_DUPLICATE_CRN"
	ErrorCodePayoutNotFound ErrorCode = "PAYOUT_NOT_FOUND"

	// Counterparty gateway errors (GATEWAY_*)
	ErrorCodeGatewayRejected ErrorCode = "GATEWAY_REJECTED" // HTTP ok, decrypted payload signals non-success
	ErrorCodeGatewayNetwork  ErrorCode = "GATEWAY_NETWORK"  // connect failure, non-2xx
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"

	// Callback errors (CALLBACK_*) - internal-log-only, never surfaced to the counterparty
	ErrorCodeCallbackOrphan ErrorCode = "CALLBACK_ORPHAN"
	ErrorCodeCallbackDecode ErrorCode = "CALLBACK_DECODE"

	// Authentication errors (AUTH_*)
	ErrorCodeAuthMissing ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid ErrorCode = "AUTH_INVALID"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeValidationAmountInvalid
}

// IsRetriable reports whether the failed submission may be retried with the
// same correlation reference. Only network-level gateway failures qualify;
// business rejections need operator intervention first.
func IsRetriable(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayNetwork || code == ErrorCodeGatewayTimeout
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")

	ErrChecksumMismatch = NewDomainError(ErrorCodeChecksumMismatch, "payload checksum verification failed")

	ErrDuplicateCRN   = NewDomainError(ErrorCodeDuplicateCRN, "correlation reference already exists")
	ErrPayoutNotFound = NewDomainError(ErrorCodePayoutNotFound, "payout not found")

	ErrGatewayRejected = NewDomainError(ErrorCodeGatewayRejected, "instruction rejected by counterparty")
	ErrGatewayNetwork  = NewDomainError(ErrorCodeGatewayNetwork, "counterparty gateway unreachable")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "counterparty gateway timeout")

	ErrCallbackOrphan = NewDomainError(ErrorCodeCallbackOrphan, "callback matches no known payout")

	ErrAuthMissing = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
