package domain

import (
	"errors"
	"fmt"
)

// DomainError is a business error with a structured code. Codes group
// by area: SESS (session store), AUTH (card handshake), KEYS (key
// store), LEDG (wallet ledger), ARG (arguments), SYS (system).
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap supports errors.Unwrap.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches DomainErrors by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy carrying additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: e.Details, Cause: cause}
}

func newError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// CodeOf extracts the error code, or "" if err is not a DomainError.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// Session store errors.
var (
	// ErrSessionNotFound covers both unknown and expired sessions; an
	// expired session is indistinguishable from one that never existed.
	ErrSessionNotFound = newError("UK-SESS-4040", "session not found")

	// ErrDuplicateSession indicates the session ID already exists.
	ErrDuplicateSession = newError("UK-SESS-4090", "session id already exists")
)

// Handshake errors.
var (
	// ErrInvalidState indicates an operation called out of protocol order.
	ErrInvalidState = newError("UK-AUTH-4090", "invalid protocol state")

	// ErrMalformedResponse indicates a card response of the wrong shape.
	ErrMalformedResponse = newError("UK-AUTH-4000", "malformed card response")

	// ErrCryptoFailure indicates a failure in the cipher layer. Fatal
	// to the current session, never retried here.
	ErrCryptoFailure = newError("UK-AUTH-5000", "cryptographic operation failed")

	// ErrRateLimited indicates too many authentication starts from one machine.
	ErrRateLimited = newError("UK-AUTH-4290", "too many authentication attempts")
)

// Key store errors.
var (
	// ErrKeyNotFound indicates no active key exists for the card.
	ErrKeyNotFound = newError("UK-KEYS-4040", "no key for card")
)

// Ledger errors.
var (
	// ErrWalletNotFound indicates an unknown wallet reference.
	ErrWalletNotFound = newError("UK-LEDG-4040", "wallet not found")

	// ErrCardNotFound indicates an unknown card reference.
	ErrCardNotFound = newError("UK-LEDG-4041", "card not found")

	// ErrMachineNotFound indicates an unknown machine reference.
	ErrMachineNotFound = newError("UK-LEDG-4042", "machine not found")

	// ErrInsufficientBalance indicates the wallet cannot cover the amount.
	ErrInsufficientBalance = newError("UK-LEDG-4020", "insufficient wallet balance")

	// ErrScopeMismatch indicates the machine belongs to a different
	// business unit than the wallet.
	ErrScopeMismatch = newError("UK-LEDG-4030", "machine outside wallet business unit")

	// ErrInvalidAmount indicates a non-positive dispense amount.
	ErrInvalidAmount = newError("UK-LEDG-4001", "amount must be positive")
)

// Argument and system errors.
var (
	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = newError("UK-ARG-1002", "missing required argument")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = newError("UK-ARG-1001", "invalid argument")

	// ErrStorage indicates a storage layer failure.
	ErrStorage = newError("UK-SYS-5001", "storage error")

	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = newError("UK-SYS-5000", "internal error")
)
