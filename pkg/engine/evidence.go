package engine

import (
	"errors"
	"fmt"

	"github.com/vulntor/fwid/pkg/fingerprint"
)

// Evidence records the comparison between expected and observed values for
// one probe. It is built once and never modified.
type Evidence struct {
	ProbeID     string                `json:"probe_id"`
	Protocol    fingerprint.Protocol  `json:"protocol"`
	Field       string                `json:"field"`
	Match       fingerprint.MatchType `json:"match"`
	Expected    string                `json:"expected"`
	Required    bool                  `json:"required"`
	Observation Observation           `json:"observation"`
	// Compared is the value the operator saw, after extraction.
	Compared string  `json:"compared,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail"`
}

// BuildEvidence converts a probe result into evidence using the built-in
// operators. It is the same leaf policy Evaluate applies.
func BuildEvidence(probe fingerprint.Probe, result ProbeResult) (Evidence, error) {
	return NewEvaluator().BuildEvidence(probe, result)
}

// BuildEvidence converts a probe result into evidence. The outcome rule is
// the single leaf policy of the engine:
//
//   - absent and required: Unknown
//   - absent and optional: NotMatched
//   - present: Matched or NotMatched by comparison
//
// An error is returned only for structurally invalid probes.
func (e *Evaluator) BuildEvidence(probe fingerprint.Probe, result ProbeResult) (Evidence, error) {
	if err := e.matcher.Check(probe); err != nil {
		return Evidence{}, err
	}

	ev := Evidence{
		ProbeID:     probe.ID,
		Protocol:    probe.Protocol,
		Field:       probe.Field,
		Match:       probe.Match,
		Expected:    probe.Value,
		Required:    probe.Required,
		Observation: result.Observation,
	}

	obs := result.Observation
	if !obs.IsPresent() {
		if probe.Required {
			ev.Outcome = Unknown
			ev.Detail = absentDetail("required", probe, obs) + "; outcome unknown"
		} else {
			ev.Outcome = NotMatched
			ev.Detail = absentDetail("optional", probe, obs) + "; counted as not matched"
		}
		e.logLeaf(ev)
		return ev, nil
	}

	matched, compared, err := e.matcher.Compare(probe, obs.Value)
	ev.Compared = compared
	switch {
	case err != nil:
		var specErr *fingerprint.SpecificationError
		if errors.As(err, &specErr) {
			return Evidence{}, err
		}
		ev.Outcome = NotMatched
		ev.Detail = fmt.Sprintf("observed %q could not be compared with %s %q: %v", obs.Value, probe.Match, probe.Value, err)
	case matched:
		ev.Outcome = Matched
		ev.Detail = fmt.Sprintf("matched %s %q with observed %q", probe.Match, probe.Value, compared)
	default:
		ev.Outcome = NotMatched
		ev.Detail = fmt.Sprintf("expected %s %q, observed %q", probe.Match, probe.Value, compared)
	}
	e.logLeaf(ev)
	return ev, nil
}

func absentDetail(kind string, probe fingerprint.Probe, obs Observation) string {
	msg := fmt.Sprintf("%s field %s not observed", kind, probe.Field)
	if obs.Source != "" {
		msg += fmt.Sprintf(" (source %s)", obs.Source)
	}
	if obs.Note != "" {
		msg += ": " + obs.Note
	}
	return msg
}

func (e *Evaluator) logLeaf(ev Evidence) {
	e.logger.Debug().
		Str("probe", ev.ProbeID).
		Str("field", ev.Field).
		Str("match", string(ev.Match)).
		Str("state", ev.Observation.State.String()).
		Str("outcome", ev.Outcome.String()).
		Msg("Evaluated probe")
}
