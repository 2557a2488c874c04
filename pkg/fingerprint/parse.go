package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// document is the on-disk YAML shape of a specification.
type document struct {
	ID         string          `yaml:"id" validate:"required"`
	Name       string          `yaml:"name"`
	Version    string          `yaml:"version"`
	Target     string          `yaml:"target"`
	Probes     []probeDocument `yaml:"probes" validate:"required,min=1,dive"`
	Logic      yaml.Node       `yaml:"logic"`
	MatchLogic string          `yaml:"match_logic" validate:"omitempty,oneof=all any"`
}

// probeDocument accepts both the current keys and the legacy ones
// (name for id, match_type for match).
type probeDocument struct {
	ID        string   `yaml:"id" validate:"required_without=Name"`
	Name      string   `yaml:"name"`
	Protocol  string   `yaml:"protocol" validate:"required,oneof=http tls banner ssh ftp smtp"`
	Field     string   `yaml:"field" validate:"required"`
	Match     string   `yaml:"match"`
	MatchType string   `yaml:"match_type"`
	Value     string   `yaml:"value"`
	Extract   string   `yaml:"extract"`
	Required  *bool    `yaml:"required"`
	Correlate []string `yaml:"correlate"`
}

func (d probeDocument) probe() Probe {
	id := d.ID
	if id == "" {
		id = d.Name
	}
	match := d.Match
	if match == "" {
		match = d.MatchType
	}
	if match == "" {
		match = string(MatchExact)
	}
	// Probes are required unless stated otherwise, so missing data surfaces
	// as Indeterminate instead of a quiet NoMatch.
	required := true
	if d.Required != nil {
		required = *d.Required
	}
	return Probe{
		ID:        id,
		Protocol:  Protocol(strings.ToLower(d.Protocol)),
		Field:     d.Field,
		Match:     MatchType(strings.ToLower(match)),
		Value:     d.Value,
		Extract:   d.Extract,
		Required:  required,
		Correlate: append([]string(nil), d.Correlate...),
	}
}

// Parse decodes a YAML specification document and validates it.
func Parse(data []byte) (*Specification, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewError(ErrorCodeParseFailed, "specification document is empty")
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &SpecificationError{Code: ErrorCodeParseFailed, Reason: "failed to parse specification YAML", Err: err}
	}

	if err := validate.Struct(doc); err != nil {
		return nil, WithSpecification(&SpecificationError{Code: ErrorCodeInvalidProbe, Reason: "document validation failed", Err: err}, doc.ID)
	}

	spec := &Specification{
		ID:      doc.ID,
		Name:    doc.Name,
		Version: doc.Version,
		Target:  doc.Target,
		Probes:  make([]Probe, 0, len(doc.Probes)),
	}
	for _, pd := range doc.Probes {
		spec.Probes = append(spec.Probes, pd.probe())
	}

	logic, err := doc.logic(spec.Probes)
	if err != nil {
		return nil, WithSpecification(err, spec.ID)
	}
	spec.Logic = logic

	if err := Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func (d *document) logic(probes []Probe) (Expr, error) {
	hasTree := d.Logic.Kind != 0
	if hasTree && d.MatchLogic != "" {
		return nil, NewError(ErrorCodeParseFailed, "use either 'logic' or 'match_logic', not both")
	}
	if hasTree {
		return decodeExpr(&d.Logic, 0)
	}

	ids := make([]string, 0, len(probes))
	for _, p := range probes {
		ids = append(ids, p.ID)
	}
	if d.MatchLogic == "any" {
		return AnyOf(ids...), nil
	}
	return AllOf(ids...), nil
}

// decodeExpr turns a YAML logic node into an Expr. Accepted forms:
//
//	probe_id
//	{probe: probe_id}
//	{and: [...]} | {or: [...]}
//	{not: <node>}
func decodeExpr(n *yaml.Node, depth int) (Expr, error) {
	if depth >= MaxLogicDepth {
		return nil, NewError(ErrorCodeCyclicLogic, "logic tree exceeds depth %d", MaxLogicDepth)
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return decodeExpr(n.Content[0], depth)
	}

	switch n.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(n.Value) == "" {
			return nil, NewError(ErrorCodeEmptyLogic, "empty probe reference at line %d", n.Line)
		}
		return Leaf{ProbeID: n.Value}, nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, NewError(ErrorCodeParseFailed, "logic node at line %d must have exactly one key", n.Line)
		}
		key, value := n.Content[0].Value, n.Content[1]
		switch strings.ToLower(key) {
		case "and", "or":
			children, err := decodeChildren(key, value, depth)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(key, "and") {
				return And{Children: children}, nil
			}
			return Or{Children: children}, nil
		case "not":
			child, err := decodeExpr(value, depth+1)
			if err != nil {
				return nil, err
			}
			return Not{Child: child}, nil
		case "probe", "leaf":
			if value.Kind != yaml.ScalarNode {
				return nil, NewError(ErrorCodeParseFailed, "%s at line %d must name a probe id", key, value.Line)
			}
			return decodeExpr(value, depth+1)
		default:
			return nil, NewError(ErrorCodeParseFailed, "unknown logic operator %q at line %d", key, n.Line)
		}
	default:
		return nil, NewError(ErrorCodeParseFailed, "unexpected logic node at line %d", n.Line)
	}
}

func decodeChildren(key string, n *yaml.Node, depth int) ([]Expr, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, NewError(ErrorCodeParseFailed, "%s at line %d expects a list", key, n.Line)
	}
	if len(n.Content) == 0 {
		return nil, NewError(ErrorCodeEmptyLogic, "%s at line %d has no children", key, n.Line)
	}
	children := make([]Expr, 0, len(n.Content))
	for i, item := range n.Content {
		child, err := decodeExpr(item, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		children = append(children, child)
	}
	return children, nil
}
