package scanexec

import (
	"errors"
	"fmt"

	"github.com/vulntor/fwid/pkg/fingerprint"
)

// Sentinel errors for common scan failures.
var (
	// ErrNoTargets indicates that no scan targets were supplied.
	ErrNoTargets = errors.New("no scan targets specified")

	// ErrNoProviders indicates that the scan has nowhere to read observations from.
	ErrNoProviders = errors.New("no observation provider configured")
)

// Error codes for scan failures used by CLI suggestion system.
const (
	errorCodeInvalidTarget        = "INVALID_TARGET"
	errorCodeNoProvider           = "NO_PROVIDER"
	errorCodeInvalidSpecification = "INVALID_SPECIFICATION"
	errorCodeScanFailure          = "SCAN_FAILURE"
)

// codedError wraps an error with an explicit error code.
type codedError struct {
	error
	code string
}

func (e *codedError) Error() string {
	return e.error.Error()
}

func (e *codedError) Unwrap() error {
	return e.error
}

func (e *codedError) Code() string {
	return e.code
}

// WithErrorCode wraps err with a specific CLI error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves a scan error into a CLI error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrNoTargets):
		return errorCodeInvalidTarget
	case errors.Is(err, ErrNoProviders):
		return errorCodeNoProvider
	case errors.Is(err, fingerprint.ErrInvalidSpecification):
		return errorCodeInvalidSpecification
	}

	return errorCodeScanFailure
}

// ExitCode maps scan errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget,
		errorCodeNoProvider,
		errorCodeInvalidSpecification:
		return 2
	default:
		return 1
	}
}

// Suggestions provides CLI hints for scan errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget:
		return []string{
			"Provide a target:           fwid scan --spec acme.yaml --target 10.0.0.1",
			"Read targets from a file:   fwid scan --spec acme.yaml --targets targets.txt",
		}
	case errorCodeNoProvider:
		return []string{
			"Use recorded observations:  fwid scan --spec acme.yaml --observations snapshot.yaml",
			"Query Netlas:               fwid scan --spec acme.yaml --provider netlas",
		}
	case errorCodeInvalidSpecification:
		return fingerprint.Suggestions(err)
	default:
		return []string{
			"Retry with verbose logs:    fwid scan ... --debug",
		}
	}
}

// NewInvalidTargetError annotates an invalid target input with context.
func NewInvalidTargetError(input string, reason error) error {
	base := ErrNoTargets
	if input != "" {
		base = fmt.Errorf("invalid target %q: %w", input, reason)
	}
	return WithErrorCode(base, errorCodeInvalidTarget)
}
