package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/vulntor/fwid/pkg/fingerprint"
)

// NodeKind names a logic tree variant in an explanation.
type NodeKind string

const (
	KindAnd  NodeKind = "and"
	KindOr   NodeKind = "or"
	KindNot  NodeKind = "not"
	KindLeaf NodeKind = "leaf"
)

// Explanation mirrors the logic tree with the outcome computed at every node.
type Explanation struct {
	Kind     NodeKind       `json:"kind"`
	ProbeID  string         `json:"probe_id,omitempty"`
	Outcome  Outcome        `json:"outcome"`
	Children []*Explanation `json:"children,omitempty"`
}

// Decision is the terminal output of an evaluation. It owns its evidence.
type Decision struct {
	SpecificationID string       `json:"specification_id"`
	Target          string       `json:"target"`
	Verdict         Verdict      `json:"verdict"`
	Evidence        []Evidence   `json:"evidence"`
	Explanation     *Explanation `json:"explanation"`
}

// MissingRequired lists required probes whose evidence is Unknown.
func (d *Decision) MissingRequired() []string {
	var ids []string
	for _, ev := range d.Evidence {
		if ev.Required && ev.Outcome == Unknown {
			ids = append(ids, ev.ProbeID)
		}
	}
	return ids
}

// Counts tallies evidence outcomes.
func (d *Decision) Counts() (matched, notMatched, unknown int) {
	for _, ev := range d.Evidence {
		switch ev.Outcome {
		case Matched:
			matched++
		case NotMatched:
			notMatched++
		default:
			unknown++
		}
	}
	return matched, notMatched, unknown
}

// Digest returns a hex sha256 of the decision's JSON encoding. Identical
// inputs give identical digests, which lets reviewers pin a decision.
func (d *Decision) Digest() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMatcher replaces the built-in matcher.
func WithMatcher(m *Matcher) Option {
	return func(e *Evaluator) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithLogger sets the logger used for per-probe debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// Evaluator applies a specification's logic to a set of probe results.
// An Evaluator holds no per-evaluation state and may be shared.
type Evaluator struct {
	matcher *Matcher
	logger  zerolog.Logger
}

// NewEvaluator builds an Evaluator with the built-in matcher and a
// discarding logger unless overridden.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		matcher: NewMatcher(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate is a convenience wrapper around a default Evaluator.
func Evaluate(spec *fingerprint.Specification, target string, results Results) (*Decision, error) {
	return NewEvaluator().Evaluate(spec, target, results)
}

// Check reports the specification error Evaluate would return for spec, if
// any, without needing results. Callers evaluating many targets use it to
// fail once up front.
func (e *Evaluator) Check(spec *fingerprint.Specification) error {
	probes, err := reachableProbes(spec)
	if err != nil {
		return err
	}
	for _, p := range probes {
		if err := e.matcher.Check(p); err != nil {
			return fingerprint.WithSpecification(err, spec.ID)
		}
	}
	return nil
}

// Evaluate computes the match decision of spec for target from results.
//
// Every reachable probe gets exactly one evidence record, in declared probe
// order, and every node of the tree is evaluated: no short-circuiting, so
// the evidence trail is complete. Missing entries in results count as
// Absent. The only error is a *fingerprint.SpecificationError.
func (e *Evaluator) Evaluate(spec *fingerprint.Specification, target string, results Results) (*Decision, error) {
	probes, err := reachableProbes(spec)
	if err != nil {
		return nil, err
	}

	evidence := make([]Evidence, 0, len(probes))
	leafOutcomes := make(map[string]Outcome, len(probes))
	for _, p := range probes {
		ev, err := e.BuildEvidence(p, results.Lookup(p.ID))
		if err != nil {
			return nil, fingerprint.WithSpecification(err, spec.ID)
		}
		evidence = append(evidence, ev)
		leafOutcomes[p.ID] = ev.Outcome
	}

	explanation, err := explain(spec.Logic, leafOutcomes, 0)
	if err != nil {
		return nil, fingerprint.WithSpecification(err, spec.ID)
	}

	decision := &Decision{
		SpecificationID: spec.ID,
		Target:          target,
		Verdict:         VerdictOf(explanation.Outcome),
		Evidence:        evidence,
		Explanation:     explanation,
	}

	e.logger.Debug().
		Str("specification", spec.ID).
		Str("target", target).
		Str("verdict", decision.Verdict.String()).
		Int("evidence", len(evidence)).
		Msg("Evaluated specification")

	return decision, nil
}

func explain(expr fingerprint.Expr, leaves map[string]Outcome, depth int) (*Explanation, error) {
	if depth >= fingerprint.MaxLogicDepth {
		return nil, fingerprint.NewError(fingerprint.ErrorCodeCyclicLogic, "logic tree exceeds depth %d", fingerprint.MaxLogicDepth)
	}

	switch node := expr.(type) {
	case fingerprint.And:
		children, outcomes, err := explainChildren(node.Children, leaves, depth)
		if err != nil {
			return nil, err
		}
		return &Explanation{Kind: KindAnd, Outcome: And(outcomes...), Children: children}, nil
	case fingerprint.Or:
		children, outcomes, err := explainChildren(node.Children, leaves, depth)
		if err != nil {
			return nil, err
		}
		return &Explanation{Kind: KindOr, Outcome: Or(outcomes...), Children: children}, nil
	case fingerprint.Not:
		child, err := explain(node.Child, leaves, depth+1)
		if err != nil {
			return nil, err
		}
		return &Explanation{Kind: KindNot, Outcome: Not(child.Outcome), Children: []*Explanation{child}}, nil
	case fingerprint.Leaf:
		outcome, ok := leaves[node.ProbeID]
		if !ok {
			return nil, fingerprint.NewProbeError(fingerprint.ErrorCodeUnknownProbe, node.ProbeID, "logic references a probe that is not declared")
		}
		return &Explanation{Kind: KindLeaf, ProbeID: node.ProbeID, Outcome: outcome}, nil
	default:
		return nil, fingerprint.NewError(fingerprint.ErrorCodeEmptyLogic, "unsupported logic node %T", expr)
	}
}

func explainChildren(exprs []fingerprint.Expr, leaves map[string]Outcome, depth int) ([]*Explanation, []Outcome, error) {
	if len(exprs) == 0 {
		return nil, nil, fingerprint.NewError(fingerprint.ErrorCodeEmptyLogic, "combinator has no children")
	}
	children := make([]*Explanation, 0, len(exprs))
	outcomes := make([]Outcome, 0, len(exprs))
	for _, child := range exprs {
		ex, err := explain(child, leaves, depth+1)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, ex)
		outcomes = append(outcomes, ex.Outcome)
	}
	return children, outcomes, nil
}
