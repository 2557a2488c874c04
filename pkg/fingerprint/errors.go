package fingerprint

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ErrorCodeUnknownProbe   = "SPEC_UNKNOWN_PROBE"
	ErrorCodeCyclicLogic    = "SPEC_CYCLIC_LOGIC"
	ErrorCodeEmptyLogic     = "SPEC_EMPTY_LOGIC"
	ErrorCodeInvalidProbe   = "SPEC_INVALID_PROBE"
	ErrorCodeInvalidPattern = "SPEC_INVALID_PATTERN"
	ErrorCodeDuplicateProbe = "SPEC_DUPLICATE_PROBE"
	ErrorCodeParseFailed    = "SPEC_PARSE_FAILED"
)

// ErrInvalidSpecification is matched by every SpecificationError.
var ErrInvalidSpecification = errors.New("invalid specification")

// SpecificationError reports a structural inconsistency in a specification.
// It is fatal to a single evaluation and is never retried.
type SpecificationError struct {
	SpecificationID string
	ProbeID         string
	Code            string
	Reason          string
	Err             error
}

func (e *SpecificationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid specification")
	if e.SpecificationID != "" {
		fmt.Fprintf(&b, " %q", e.SpecificationID)
	}
	if e.ProbeID != "" {
		fmt.Fprintf(&b, " (probe %q)", e.ProbeID)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is makes errors.Is(err, ErrInvalidSpecification) hold for every SpecificationError.
func (e *SpecificationError) Is(target error) bool {
	return target == ErrInvalidSpecification
}

func (e *SpecificationError) Unwrap() error {
	return e.Err
}

// ErrorCode implements the coded-error contract used by the CLI.
func (e *SpecificationError) ErrorCode() string {
	return e.Code
}

// NewError builds a SpecificationError with a formatted reason.
func NewError(code, format string, args ...any) *SpecificationError {
	return &SpecificationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// NewProbeError builds a SpecificationError scoped to a single probe.
func NewProbeError(code, probeID, format string, args ...any) *SpecificationError {
	return &SpecificationError{Code: code, ProbeID: probeID, Reason: fmt.Sprintf(format, args...)}
}

// WithSpecification stamps the specification id onto a SpecificationError
// that does not carry one yet. Other errors are returned unchanged.
func WithSpecification(err error, id string) error {
	var specErr *SpecificationError
	if errors.As(err, &specErr) && specErr.SpecificationID == "" {
		specErr.SpecificationID = id
	}
	return err
}

// ErrorCode resolves an error to its specification error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var specErr *SpecificationError
	if errors.As(err, &specErr) && specErr.Code != "" {
		return specErr.Code
	}
	if errors.Is(err, ErrInvalidSpecification) {
		return ErrorCodeParseFailed
	}
	return ""
}

// ExitCode maps specification errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrInvalidSpecification) {
		return 2
	}
	return 1
}

// Suggestions provides CLI hints for specification errors.
func Suggestions(err error) []string {
	switch ErrorCode(err) {
	case ErrorCodeUnknownProbe:
		return []string{
			"Every logic leaf must name a probe declared under 'probes'",
			"Check for typos in probe ids",
		}
	case ErrorCodeCyclicLogic:
		return []string{
			"The logic tree is too deep or self-referencing",
			"Flatten nested and/or blocks",
		}
	case ErrorCodeEmptyLogic:
		return []string{
			"Add a 'logic' tree or 'match_logic: all|any'",
		}
	case ErrorCodeInvalidPattern:
		return []string{
			"Check regex syntax in 'value' and 'extract'",
			"version_* match types need a semantic version (or constraint) as value",
		}
	case ErrorCodeDuplicateProbe:
		return []string{
			"Probe ids must be unique within a specification",
		}
	case ErrorCodeInvalidProbe, ErrorCodeParseFailed:
		return []string{
			"Validate the file:         fwid validate <path>",
		}
	default:
		return nil
	}
}
