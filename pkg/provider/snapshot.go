package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

// SnapshotName is the default source name of snapshot observations.
const SnapshotName = "snapshot"

// snapshotDocument is the on-disk layout of an observation snapshot. JSON
// snapshots decode through the same path.
//
//	targets:
//	  10.0.0.1:
//	    source: lab-capture
//	    observed_at: 2024-05-01T12:00:00Z
//	    fields:
//	      http.headers.server: Acme/1.2
//	      http.firmware.version: 1.20        # kept as written, not as a float
//	      tls.certificate.subject.cn: null   # explicitly absent
type snapshotDocument struct {
	Source  string                    `yaml:"source"`
	Targets map[string]snapshotTarget `yaml:"targets"`
}

type snapshotTarget struct {
	Source     string               `yaml:"source"`
	ObservedAt any                  `yaml:"observed_at"`
	Fields     map[string]yaml.Node `yaml:"fields"`
}

type snapshotEntry struct {
	source     string
	observedAt time.Time
	fields     map[string]yaml.Node
}

// SnapshotProvider serves observations recorded ahead of time, for offline
// evaluation and reproducible runs. It handles every protocol.
type SnapshotProvider struct {
	name    string
	targets map[string]snapshotEntry
}

// LoadSnapshot reads a YAML or JSON snapshot file.
func LoadSnapshot(path string) (*SnapshotProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	p, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// ParseSnapshot decodes snapshot bytes. Field values are taken as the text
// written in the file, so an unquoted 1.20 stays "1.20"; a list contributes
// its first element and null marks the field absent.
func ParseSnapshot(data []byte) (*SnapshotProvider, error) {
	var doc snapshotDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if len(doc.Targets) == 0 {
		return nil, fmt.Errorf("parse snapshot: no targets")
	}

	name := doc.Source
	if name == "" {
		name = SnapshotName
	}
	p := &SnapshotProvider{name: name, targets: make(map[string]snapshotEntry, len(doc.Targets))}
	for target, t := range doc.Targets {
		entry := snapshotEntry{source: t.Source, fields: t.Fields}
		if entry.source == "" {
			entry.source = name
		}
		if t.ObservedAt != nil {
			ts, err := cast.ToTimeE(t.ObservedAt)
			if err != nil {
				return nil, fmt.Errorf("parse snapshot: target %s: observed_at: %w", target, err)
			}
			entry.observedAt = ts.UTC()
		}
		p.targets[strings.TrimSpace(target)] = entry
	}
	return p, nil
}

// Name implements Provider.
func (p *SnapshotProvider) Name() string { return p.name }

// CanHandle implements Provider.
func (p *SnapshotProvider) CanHandle(fingerprint.Protocol, string) bool { return true }

// Targets returns the targets recorded in the snapshot.
func (p *SnapshotProvider) Targets() []string {
	out := make([]string, 0, len(p.targets))
	for t := range p.targets {
		out = append(out, t)
	}
	return out
}

// Lookup implements Provider.
func (p *SnapshotProvider) Lookup(_ context.Context, target string, ref engine.FieldRef) (engine.Observation, error) {
	entry, ok := p.targets[target]
	if !ok {
		return engine.Absent(p.name, time.Time{}).WithNote("target not in snapshot"), nil
	}

	raw, ok := entry.fields[ref.Field]
	if !ok {
		return engine.Absent(entry.source, entry.observedAt), nil
	}
	value, present, err := scalar(&raw)
	if err != nil {
		return engine.Observation{}, fmt.Errorf("field %s: %w", ref.Field, err)
	}
	if !present {
		return engine.Absent(entry.source, entry.observedAt), nil
	}
	return engine.Present(value, entry.source, entry.observedAt), nil
}

// scalar returns the literal text of a field value without YAML's type
// resolution.
func scalar(node *yaml.Node) (string, bool, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return "", false, nil
		}
		return node.Value, true, nil
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return "", false, nil
		}
		return scalar(node.Content[0])
	case yaml.MappingNode:
		return "", false, fmt.Errorf("value is an object, not a scalar")
	default:
		return "", false, nil
	}
}
