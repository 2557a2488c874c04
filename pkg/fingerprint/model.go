// Package fingerprint holds the in-memory model of a firmware fingerprint
// specification: its probes, the logic tree combining them, and the loader
// that builds both from YAML documents.
package fingerprint

import "strings"

// Protocol tags the kind of artefact a probe reads.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolTLS    Protocol = "tls"
	ProtocolBanner Protocol = "banner"
	ProtocolSSH    Protocol = "ssh"
	ProtocolFTP    Protocol = "ftp"
	ProtocolSMTP   Protocol = "smtp"
)

// AllProtocols returns every protocol tag a probe may carry.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolHTTP, ProtocolTLS, ProtocolBanner, ProtocolSSH, ProtocolFTP, ProtocolSMTP}
}

// IsValid reports whether p is a known protocol tag.
func (p Protocol) IsValid() bool {
	for _, known := range AllProtocols() {
		if p == known {
			return true
		}
	}
	return false
}

// MatchType selects how an observed value is compared with the expected one.
type MatchType string

const (
	MatchExact             MatchType = "exact"
	MatchContains          MatchType = "contains"
	MatchRegex             MatchType = "regex"
	MatchPrefix            MatchType = "prefix"
	MatchSuffix            MatchType = "suffix"
	MatchVersionEqual      MatchType = "version_eq"
	MatchVersionLess       MatchType = "version_lt"
	MatchVersionLessEq     MatchType = "version_lte"
	MatchVersionGreater    MatchType = "version_gt"
	MatchVersionGreaterEq  MatchType = "version_gte"
	MatchVersionConstraint MatchType = "version_constraint"
)

// IsVersion reports whether m compares semantic versions.
func (m MatchType) IsVersion() bool {
	return strings.HasPrefix(string(m), "version_")
}

// Probe is one atomic observation requirement.
type Probe struct {
	ID       string    `json:"id"`
	Protocol Protocol  `json:"protocol"`
	Field    string    `json:"field"`
	Match    MatchType `json:"match"`
	Value    string    `json:"value"`
	// Extract is an optional regex whose first capture group replaces the
	// observed value before comparison (e.g. pulling "1.2" out of "Acme/1.2").
	Extract string `json:"extract,omitempty"`
	// Required probes without data make the specification non-evaluable
	// instead of false.
	Required  bool     `json:"required"`
	Correlate []string `json:"correlate,omitempty"`
}

// Specification is an immutable fingerprint: identity, target description,
// ordered probes and the logic tree referencing them.
type Specification struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Version string  `json:"version,omitempty"`
	Target  string  `json:"target"`
	Probes  []Probe `json:"probes"`
	Logic   Expr    `json:"-"`
}

// Probe looks up a probe by id.
func (s *Specification) Probe(id string) (Probe, bool) {
	if i := s.ProbeIndex(id); i >= 0 {
		return s.Probes[i], true
	}
	return Probe{}, false
}

// ProbeIndex returns the declared position of probe id, or -1.
func (s *Specification) ProbeIndex(id string) int {
	for i := range s.Probes {
		if s.Probes[i].ID == id {
			return i
		}
	}
	return -1
}
