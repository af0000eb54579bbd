package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyChain indicates a compile that produced no entries.
	ErrEmptyChain = errors.New("chain has no entries")

	// ErrSourceNotFound indicates a chain name with no backing source.
	ErrSourceNotFound = errors.New("rule source not found")
)

// InvalidChainError is returned by Apply when the chain holds no entries,
// either because it was never loaded or because it was reset.
//
// It signals misuse by the caller, distinct from "no rule matched".
type InvalidChainError struct {
	Chain string
}

// Error implements the error interface.
func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("chain %q is not loaded", e.Chain)
}

// LoadErrorCode categorizes load failures.
type LoadErrorCode string

const (
	// ErrCodeSourceNotFound indicates the chain's source could not be resolved.
	ErrCodeSourceNotFound LoadErrorCode = "SOURCE_NOT_FOUND"

	// ErrCodeReadFailed indicates an I/O error while reading the source.
	ErrCodeReadFailed LoadErrorCode = "READ_FAILED"

	// ErrCodeLineTooLong indicates a source line longer than the compiler
	// accepts. The chain is reset as for a read failure.
	ErrCodeLineTooLong LoadErrorCode = "LINE_TOO_LONG"

	// ErrCodeEmptyChain indicates the source compiled to zero entries.
	ErrCodeEmptyChain LoadErrorCode = "EMPTY_CHAIN"
)

// LoadError reports why a chain could not be loaded.
type LoadError struct {
	Code  LoadErrorCode
	Chain string
	Err   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: load chain %q: %v", e.Code, e.Chain, e.Err)
	}
	return fmt.Sprintf("%s: load chain %q", e.Code, e.Chain)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsInvalidChain returns true if the error is an InvalidChainError.
// Uses errors.As to handle wrapped errors.
func IsInvalidChain(err error) bool {
	var ice *InvalidChainError
	return errors.As(err, &ice)
}

// IsLoadError returns true if the error is a LoadError with the given code.
// An empty code matches any LoadError.
func IsLoadError(err error, code LoadErrorCode) bool {
	var le *LoadError
	if !errors.As(err, &le) {
		return false
	}
	return code == "" || le.Code == code
}
