package engine

import (
	"fmt"
	"time"
)

// ObservationState distinguishes an observed value from an explicit absence.
type ObservationState uint8

const (
	StateAbsent ObservationState = iota
	StatePresent
)

func (s ObservationState) String() string {
	if s == StatePresent {
		return "present"
	}
	return "absent"
}

// MarshalText encodes the state by name.
func (s ObservationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *ObservationState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "present":
		*s = StatePresent
	case "absent":
		*s = StateAbsent
	default:
		return fmt.Errorf("unknown observation state %q", text)
	}
	return nil
}

// Observation is what a provider returned for one field: either a value or
// an explicit "field not present" marker, tagged with its source and time.
// Absence is data, never an error and never a false match.
type Observation struct {
	State      ObservationState `json:"state"`
	Value      string           `json:"value,omitempty"`
	Source     string           `json:"source"`
	ObservedAt time.Time        `json:"observed_at"`
	// Note explains an absence (no provider for the field, provider failure).
	Note string `json:"note,omitempty"`
}

// Present builds an observation carrying a value.
func Present(value, source string, observedAt time.Time) Observation {
	return Observation{State: StatePresent, Value: value, Source: source, ObservedAt: observedAt}
}

// Absent builds an explicit absence marker.
func Absent(source string, observedAt time.Time) Observation {
	return Observation{State: StateAbsent, Source: source, ObservedAt: observedAt}
}

// WithNote returns a copy of o annotated with note.
func (o Observation) WithNote(note string) Observation {
	o.Note = note
	return o
}

// IsPresent reports whether o carries a value.
func (o Observation) IsPresent() bool {
	return o.State == StatePresent
}

// ProbeResult pairs a probe id with the observation for its field.
type ProbeResult struct {
	ProbeID     string      `json:"probe_id"`
	Observation Observation `json:"observation"`
}

// Results maps probe id to its result. A missing entry reads as Absent.
type Results map[string]ProbeResult

// Lookup returns the result for id, or an Absent result with an empty
// source when the provider layer supplied nothing.
func (r Results) Lookup(id string) ProbeResult {
	if res, ok := r[id]; ok {
		return res
	}
	return ProbeResult{
		ProbeID:     id,
		Observation: Absent("", time.Time{}).WithNote("no result supplied"),
	}
}
