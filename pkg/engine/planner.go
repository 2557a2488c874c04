package engine

import (
	"github.com/vulntor/fwid/pkg/fingerprint"
)

// PlannedQuery names one provider field needed to evaluate one probe.
type PlannedQuery struct {
	ProbeID  string               `json:"probe_id"`
	Protocol fingerprint.Protocol `json:"protocol"`
	Field    string               `json:"field"`
	// Independent is true when the probe's truth value can be computed
	// without knowing any other probe's result.
	Independent bool `json:"independent"`
	// SharedWith lists other reachable probes reading the same field.
	SharedWith []string `json:"shared_with,omitempty"`
	// Correlates lists reachable probes with a stated correlation, in
	// either direction.
	Correlates []string `json:"correlates,omitempty"`
}

// FieldRef identifies a provider field.
type FieldRef struct {
	Protocol fingerprint.Protocol `json:"protocol"`
	Field    string               `json:"field"`
}

// QueryPlan lists one query per probe reachable from the logic root, in the
// specification's declared probe order.
type QueryPlan struct {
	SpecificationID string         `json:"specification_id"`
	Queries         []PlannedQuery `json:"queries"`
}

// ProbeIDs returns the planned probe ids in plan order.
func (p *QueryPlan) ProbeIDs() []string {
	ids := make([]string, 0, len(p.Queries))
	for _, q := range p.Queries {
		ids = append(ids, q.ProbeID)
	}
	return ids
}

// Fields returns the distinct protocol/field pairs of the plan in first-use
// order, so a provider layer can fetch each field once.
func (p *QueryPlan) Fields() []FieldRef {
	seen := make(map[FieldRef]struct{}, len(p.Queries))
	refs := make([]FieldRef, 0, len(p.Queries))
	for _, q := range p.Queries {
		ref := FieldRef{Protocol: q.Protocol, Field: q.Field}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// QueriesFor returns the queries reading ref, in plan order.
func (p *QueryPlan) QueriesFor(ref FieldRef) []PlannedQuery {
	var out []PlannedQuery
	for _, q := range p.Queries {
		if q.Protocol == ref.Protocol && q.Field == ref.Field {
			out = append(out, q)
		}
	}
	return out
}

// Plan derives the query plan of spec without evaluating anything. It fails
// with a *fingerprint.SpecificationError when the logic tree is malformed or
// references an undeclared probe.
func Plan(spec *fingerprint.Specification) (*QueryPlan, error) {
	reachable, err := reachableProbes(spec)
	if err != nil {
		return nil, err
	}

	byField := make(map[string][]string)
	for _, p := range reachable {
		byField[p.Field] = append(byField[p.Field], p.ID)
	}

	correlated := make(map[string][]string)
	inPlan := make(map[string]bool, len(reachable))
	for _, p := range reachable {
		inPlan[p.ID] = true
	}
	for _, p := range reachable {
		for _, other := range p.Correlate {
			if !inPlan[other] {
				continue
			}
			correlated[p.ID] = appendUnique(correlated[p.ID], other)
			correlated[other] = appendUnique(correlated[other], p.ID)
		}
	}

	plan := &QueryPlan{
		SpecificationID: spec.ID,
		Queries:         make([]PlannedQuery, 0, len(reachable)),
	}
	for _, p := range reachable {
		var shared []string
		for _, id := range byField[p.Field] {
			if id != p.ID {
				shared = append(shared, id)
			}
		}
		// Correlates keeps declared probe order.
		var corr []string
		for _, q := range reachable {
			if contains(correlated[p.ID], q.ID) {
				corr = append(corr, q.ID)
			}
		}
		plan.Queries = append(plan.Queries, PlannedQuery{
			ProbeID:     p.ID,
			Protocol:    p.Protocol,
			Field:       p.Field,
			Independent: len(shared) == 0 && len(corr) == 0,
			SharedWith:  shared,
			Correlates:  corr,
		})
	}
	return plan, nil
}

// reachableProbes returns the probes referenced from the logic root, in the
// specification's declared order.
func reachableProbes(spec *fingerprint.Specification) ([]fingerprint.Probe, error) {
	if spec == nil {
		return nil, fingerprint.NewError(fingerprint.ErrorCodeParseFailed, "specification is nil")
	}
	ids, err := fingerprint.LeafIDs(spec.Logic)
	if err != nil {
		return nil, fingerprint.WithSpecification(err, spec.ID)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if spec.ProbeIndex(id) < 0 {
			return nil, fingerprint.WithSpecification(
				fingerprint.NewProbeError(fingerprint.ErrorCodeUnknownProbe, id, "logic references a probe that is not declared"),
				spec.ID)
		}
		wanted[id] = true
	}

	probes := make([]fingerprint.Probe, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, p := range spec.Probes {
		if wanted[p.ID] && !seen[p.ID] {
			seen[p.ID] = true
			probes = append(probes, p)
		}
	}
	return probes, nil
}

func appendUnique(list []string, id string) []string {
	if contains(list, id) {
		return list
	}
	return append(list, id)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
