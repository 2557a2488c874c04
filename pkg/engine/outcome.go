// Package engine turns a fingerprint specification into a query plan and
// decides, from a frozen set of probe results, whether a target matches it.
//
// Everything in this package is pure computation over its inputs: there is no
// I/O, no clock access and no shared mutable state, so evaluations for
// different targets can run concurrently without locking.
package engine

import "fmt"

// Outcome is the tri-state value of a single probe or logic node.
type Outcome uint8

const (
	// Unknown means the value could not be determined from the available data.
	Unknown Outcome = iota
	Matched
	NotMatched
)

var outcomeNames = [...]string{
	Unknown:    "unknown",
	Matched:    "matched",
	NotMatched: "not_matched",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", o)
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	if int(o) >= len(outcomeNames) {
		return nil, fmt.Errorf("invalid outcome %d", o)
	}
	return []byte(outcomeNames[o]), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// And is Matched if every outcome is Matched, NotMatched if any is
// NotMatched, Unknown otherwise. All inputs are inspected.
func And(outcomes ...Outcome) Outcome {
	result := Matched
	for _, o := range outcomes {
		switch o {
		case NotMatched:
			result = NotMatched
		case Unknown:
			if result != NotMatched {
				result = Unknown
			}
		}
	}
	return result
}

// Or is Matched if any outcome is Matched, NotMatched if every one is
// NotMatched, Unknown otherwise. All inputs are inspected.
func Or(outcomes ...Outcome) Outcome {
	result := NotMatched
	for _, o := range outcomes {
		switch o {
		case Matched:
			result = Matched
		case Unknown:
			if result != Matched {
				result = Unknown
			}
		}
	}
	return result
}

// Not swaps Matched and NotMatched; Unknown stays Unknown.
func Not(o Outcome) Outcome {
	switch o {
	case Matched:
		return NotMatched
	case NotMatched:
		return Matched
	default:
		return Unknown
	}
}

// Verdict is the overall result of a match decision.
type Verdict uint8

const (
	Indeterminate Verdict = iota
	Match
	NoMatch
)

var verdictNames = [...]string{
	Indeterminate: "indeterminate",
	Match:         "match",
	NoMatch:       "no_match",
}

func (v Verdict) String() string {
	if int(v) < len(verdictNames) {
		return verdictNames[v]
	}
	return fmt.Sprintf("verdict(%d)", v)
}

// MarshalText encodes the verdict by name.
func (v Verdict) MarshalText() ([]byte, error) {
	if int(v) >= len(verdictNames) {
		return nil, fmt.Errorf("invalid verdict %d", v)
	}
	return []byte(verdictNames[v]), nil
}

// UnmarshalText decodes a verdict name.
func (v *Verdict) UnmarshalText(text []byte) error {
	for i, name := range verdictNames {
		if name == string(text) {
			*v = Verdict(i)
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", text)
}

// VerdictOf maps a root outcome to a verdict.
func VerdictOf(o Outcome) Verdict {
	switch o {
	case Matched:
		return Match
	case NotMatched:
		return NoMatch
	default:
		return Indeterminate
	}
}
