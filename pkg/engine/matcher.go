package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/vulntor/fwid/pkg/fingerprint"
)

// ErrExtractNoMatch is returned by Compare when a probe's extract expression
// finds nothing in the observed value.
var ErrExtractNoMatch = errors.New("extract expression did not match observed value")

// OperatorFunc compares an observed value with the expected one. An error
// means the observed value could not be interpreted (e.g. not a version).
type OperatorFunc func(observed, expected string) (bool, error)

// Matcher compares observed values against probe expectations using a
// registry of named operators.
//
// Register custom operators before sharing a Matcher between goroutines;
// lookups are read-only afterwards.
type Matcher struct {
	operators map[fingerprint.MatchType]OperatorFunc
}

// NewMatcher creates a matcher with the built-in operators.
func NewMatcher() *Matcher {
	m := &Matcher{
		operators: make(map[fingerprint.MatchType]OperatorFunc),
	}
	m.registerBuiltinOperators()
	return m
}

// RegisterOperator registers or replaces the operator for a match type.
func (m *Matcher) RegisterOperator(name fingerprint.MatchType, fn OperatorFunc) {
	m.operators[name] = fn
}

func (m *Matcher) registerBuiltinOperators() {
	// String operators
	m.RegisterOperator(fingerprint.MatchExact, opExact)
	m.RegisterOperator(fingerprint.MatchContains, opContains)
	m.RegisterOperator(fingerprint.MatchPrefix, opPrefix)
	m.RegisterOperator(fingerprint.MatchSuffix, opSuffix)
	m.RegisterOperator(fingerprint.MatchRegex, opRegex)

	// Version operators
	m.RegisterOperator(fingerprint.MatchVersionEqual, versionOp(func(c int) bool { return c == 0 }))
	m.RegisterOperator(fingerprint.MatchVersionLess, versionOp(func(c int) bool { return c < 0 }))
	m.RegisterOperator(fingerprint.MatchVersionLessEq, versionOp(func(c int) bool { return c <= 0 }))
	m.RegisterOperator(fingerprint.MatchVersionGreater, versionOp(func(c int) bool { return c > 0 }))
	m.RegisterOperator(fingerprint.MatchVersionGreaterEq, versionOp(func(c int) bool { return c >= 0 }))
	m.RegisterOperator(fingerprint.MatchVersionConstraint, opVersionConstraint)
}

func isBuiltin(t fingerprint.MatchType) bool {
	switch t {
	case fingerprint.MatchExact, fingerprint.MatchContains, fingerprint.MatchPrefix,
		fingerprint.MatchSuffix, fingerprint.MatchRegex,
		fingerprint.MatchVersionEqual, fingerprint.MatchVersionLess, fingerprint.MatchVersionLessEq,
		fingerprint.MatchVersionGreater, fingerprint.MatchVersionGreaterEq, fingerprint.MatchVersionConstraint:
		return true
	}
	return false
}

// Check validates a probe's match type, expected value and extract
// expression up front, so that comparison failures during evaluation can
// only come from observed data.
func (m *Matcher) Check(p fingerprint.Probe) error {
	if _, ok := m.operators[p.Match]; !ok {
		return fingerprint.NewProbeError(fingerprint.ErrorCodeInvalidPattern, p.ID, "unknown match type %q", p.Match)
	}
	if isBuiltin(p.Match) {
		return fingerprint.CheckPattern(p)
	}
	// Custom operators validate their own expectations; only extract is ours.
	probe := p
	probe.Match = fingerprint.MatchExact
	return fingerprint.CheckPattern(probe)
}

// Compare applies the probe's extract expression (if any) and operator to
// observed. It returns the value actually compared.
func (m *Matcher) Compare(p fingerprint.Probe, observed string) (bool, string, error) {
	op, ok := m.operators[p.Match]
	if !ok {
		return false, observed, fingerprint.NewProbeError(fingerprint.ErrorCodeInvalidPattern, p.ID, "unknown match type %q", p.Match)
	}

	compared := observed
	if p.Extract != "" {
		re, err := regexp.Compile(p.Extract)
		if err != nil {
			return false, observed, &fingerprint.SpecificationError{
				Code: fingerprint.ErrorCodeInvalidPattern, ProbeID: p.ID, Reason: "invalid extract expression", Err: err,
			}
		}
		groups := re.FindStringSubmatch(observed)
		if len(groups) < 2 {
			return false, observed, ErrExtractNoMatch
		}
		compared = groups[1]
	}

	matched, err := op(compared, p.Value)
	return matched, compared, err
}

// String Operators

func opExact(observed, expected string) (bool, error) {
	return observed == expected, nil
}

func opContains(observed, expected string) (bool, error) {
	return strings.Contains(observed, expected), nil
}

func opPrefix(observed, expected string) (bool, error) {
	return strings.HasPrefix(observed, expected), nil
}

func opSuffix(observed, expected string) (bool, error) {
	return strings.HasSuffix(observed, expected), nil
}

func opRegex(observed, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return re.MatchString(observed), nil
}

// Version Operators

func versionOp(accept func(cmp int) bool) OperatorFunc {
	return func(observed, expected string) (bool, error) {
		ov, err := semver.NewVersion(strings.TrimSpace(observed))
		if err != nil {
			return false, fmt.Errorf("invalid observed version: %w", err)
		}
		ev, err := semver.NewVersion(expected)
		if err != nil {
			return false, fmt.Errorf("invalid expected version: %w", err)
		}
		return accept(ov.Compare(ev)), nil
	}
}

func opVersionConstraint(observed, expected string) (bool, error) {
	ov, err := semver.NewVersion(strings.TrimSpace(observed))
	if err != nil {
		return false, fmt.Errorf("invalid observed version: %w", err)
	}
	c, err := semver.NewConstraint(expected)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint: %w", err)
	}
	return c.Check(ov), nil
}
