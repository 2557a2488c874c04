package fingerprint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ValidateStructure checks the invariants every consumer of a specification
// relies on: a non-empty id, unique probe ids, a bounded logic tree whose
// leaves all name declared probes, and known correlation targets.
func ValidateStructure(s *Specification) error {
	if s == nil {
		return NewError(ErrorCodeParseFailed, "specification is nil")
	}
	return WithSpecification(validateStructure(s), s.ID)
}

func validateStructure(s *Specification) error {
	if strings.TrimSpace(s.ID) == "" {
		return NewError(ErrorCodeInvalidProbe, "specification id is required")
	}

	seen := make(map[string]struct{}, len(s.Probes))
	for _, p := range s.Probes {
		if strings.TrimSpace(p.ID) == "" {
			return NewError(ErrorCodeInvalidProbe, "probe without id")
		}
		if _, dup := seen[p.ID]; dup {
			return NewProbeError(ErrorCodeDuplicateProbe, p.ID, "probe declared more than once")
		}
		seen[p.ID] = struct{}{}
	}

	for _, p := range s.Probes {
		for _, other := range p.Correlate {
			if other == p.ID {
				return NewProbeError(ErrorCodeInvalidProbe, p.ID, "probe correlates with itself")
			}
			if _, ok := seen[other]; !ok {
				return NewProbeError(ErrorCodeUnknownProbe, p.ID, "correlates with unknown probe %q", other)
			}
		}
	}

	ids, err := LeafIDs(s.Logic)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			return NewProbeError(ErrorCodeUnknownProbe, id, "logic references a probe that is not declared")
		}
	}
	return nil
}

// Validate runs ValidateStructure and additionally checks every probe's
// protocol, field and pattern against the built-in match types.
func Validate(s *Specification) error {
	if err := ValidateStructure(s); err != nil {
		return err
	}
	for _, p := range s.Probes {
		if !p.Protocol.IsValid() {
			return WithSpecification(NewProbeError(ErrorCodeInvalidProbe, p.ID, "unknown protocol %q", p.Protocol), s.ID)
		}
		if strings.TrimSpace(p.Field) == "" {
			return WithSpecification(NewProbeError(ErrorCodeInvalidProbe, p.ID, "field path is required"), s.ID)
		}
		if err := CheckPattern(p); err != nil {
			return WithSpecification(err, s.ID)
		}
	}
	return nil
}

// CheckPattern verifies that a probe's expected value is usable with its
// built-in match type and that its extract expression compiles.
func CheckPattern(p Probe) error {
	if p.Extract != "" {
		re, err := regexp.Compile(p.Extract)
		if err != nil {
			return &SpecificationError{Code: ErrorCodeInvalidPattern, ProbeID: p.ID, Reason: "invalid extract expression", Err: err}
		}
		if re.NumSubexp() < 1 {
			return NewProbeError(ErrorCodeInvalidPattern, p.ID, "extract expression %q has no capture group", p.Extract)
		}
	}

	switch p.Match {
	case MatchExact, MatchContains, MatchPrefix, MatchSuffix:
		return nil
	case MatchRegex:
		if _, err := regexp.Compile(p.Value); err != nil {
			return &SpecificationError{Code: ErrorCodeInvalidPattern, ProbeID: p.ID, Reason: "invalid regex", Err: err}
		}
		return nil
	case MatchVersionEqual, MatchVersionLess, MatchVersionLessEq, MatchVersionGreater, MatchVersionGreaterEq:
		if _, err := semver.NewVersion(p.Value); err != nil {
			return &SpecificationError{Code: ErrorCodeInvalidPattern, ProbeID: p.ID, Reason: fmt.Sprintf("invalid expected version %q", p.Value), Err: err}
		}
		return nil
	case MatchVersionConstraint:
		if _, err := semver.NewConstraint(p.Value); err != nil {
			return &SpecificationError{Code: ErrorCodeInvalidPattern, ProbeID: p.ID, Reason: fmt.Sprintf("invalid version constraint %q", p.Value), Err: err}
		}
		return nil
	default:
		return NewProbeError(ErrorCodeInvalidPattern, p.ID, "unknown match type %q", p.Match)
	}
}
