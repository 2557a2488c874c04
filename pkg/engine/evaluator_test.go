package engine

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwid/pkg/fingerprint"
)

func acmeSpec() *fingerprint.Specification {
	return &fingerprint.Specification{
		ID:   "acme-router",
		Name: "Acme router",
		Probes: []fingerprint.Probe{
			{ID: "http_server_header", Protocol: fingerprint.ProtocolHTTP, Field: "http.headers.server", Match: fingerprint.MatchExact, Value: "Acme/1.2", Required: true},
			{ID: "tls_cert_cn", Protocol: fingerprint.ProtocolTLS, Field: "tls.certificate.subject.cn", Match: fingerprint.MatchExact, Value: "acme.local", Required: true},
		},
		Logic: fingerprint.AllOf("http_server_header", "tls_cert_cn"),
	}
}

func results(pairs map[string]Observation) Results {
	r := make(Results, len(pairs))
	for id, obs := range pairs {
		r[id] = ProbeResult{ProbeID: id, Observation: obs}
	}
	return r
}

func outcomes(d *Decision) []Outcome {
	out := make([]Outcome, 0, len(d.Evidence))
	for _, ev := range d.Evidence {
		out = append(out, ev.Outcome)
	}
	return out
}

func TestEvaluate_AcmeScenarios(t *testing.T) {
	tests := []struct {
		name     string
		obs      map[string]Observation
		verdict  Verdict
		outcomes []Outcome
		missing  []string
	}{
		{
			name: "tls field absent",
			obs: map[string]Observation{
				"http_server_header": Present("Acme/1.2", "snapshot", observedAt),
				"tls_cert_cn":        Absent("snapshot", observedAt),
			},
			verdict:  Indeterminate,
			outcomes: []Outcome{Matched, Unknown},
			missing:  []string{"tls_cert_cn"},
		},
		{
			name: "both match",
			obs: map[string]Observation{
				"http_server_header": Present("Acme/1.2", "snapshot", observedAt),
				"tls_cert_cn":        Present("acme.local", "snapshot", observedAt),
			},
			verdict:  Match,
			outcomes: []Outcome{Matched, Matched},
		},
		{
			name: "header differs",
			obs: map[string]Observation{
				"http_server_header": Present("nginx", "snapshot", observedAt),
				"tls_cert_cn":        Present("acme.local", "snapshot", observedAt),
			},
			verdict:  NoMatch,
			outcomes: []Outcome{NotMatched, Matched},
		},
		{
			name: "mismatch beats unknown",
			obs: map[string]Observation{
				"http_server_header": Present("nginx", "snapshot", observedAt),
			},
			verdict:  NoMatch,
			outcomes: []Outcome{NotMatched, Unknown},
			missing:  []string{"tls_cert_cn"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(acmeSpec(), "10.0.0.1", results(tt.obs))
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.outcomes, outcomes(d))
			assert.Equal(t, tt.missing, d.MissingRequired())
			assert.Equal(t, "acme-router", d.SpecificationID)
			assert.Equal(t, "10.0.0.1", d.Target)
			assert.Equal(t, "http_server_header", d.Evidence[0].ProbeID)
			assert.Equal(t, "tls_cert_cn", d.Evidence[1].ProbeID)
		})
	}
}

func TestEvaluate_SingleLeafAbsence(t *testing.T) {
	spec := acmeSpec()
	spec.Logic = fingerprint.Leaf{ProbeID: "tls_cert_cn"}

	d, err := Evaluate(spec, "t", Results{})
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, d.Verdict)
	require.Len(t, d.Evidence, 1)
	assert.Equal(t, Unknown, d.Evidence[0].Outcome)

	spec.Probes[1].Required = false
	d, err = Evaluate(spec, "t", Results{})
	require.NoError(t, err)
	assert.Equal(t, NoMatch, d.Verdict)
	assert.Equal(t, NotMatched, d.Evidence[0].Outcome)
}

func TestEvaluate_EvidenceIsCompleteWithoutShortCircuit(t *testing.T) {
	spec := acmeSpec()
	spec.Logic = fingerprint.AnyOf("http_server_header", "tls_cert_cn")

	d, err := Evaluate(spec, "t", results(map[string]Observation{
		"http_server_header": Present("Acme/1.2", "snapshot", observedAt),
		"tls_cert_cn":        Present("other", "snapshot", observedAt),
	}))
	require.NoError(t, err)
	assert.Equal(t, Match, d.Verdict)
	require.Len(t, d.Evidence, 2)
	assert.Equal(t, []Outcome{Matched, NotMatched}, outcomes(d))

	require.Len(t, d.Explanation.Children, 2)
	assert.Equal(t, KindOr, d.Explanation.Kind)
	assert.Equal(t, NotMatched, d.Explanation.Children[1].Outcome)
}

func TestEvaluate_OnlyReachableProbesProduceEvidence(t *testing.T) {
	spec := acmeSpec()
	spec.Probes = append(spec.Probes, fingerprint.Probe{
		ID: "unused", Protocol: fingerprint.ProtocolBanner, Field: "banner.raw", Match: fingerprint.MatchContains, Value: "x",
	})
	spec.Logic = fingerprint.Or{Children: []fingerprint.Expr{
		fingerprint.Leaf{ProbeID: "tls_cert_cn"},
		fingerprint.Not{Child: fingerprint.Leaf{ProbeID: "http_server_header"}},
		fingerprint.Leaf{ProbeID: "tls_cert_cn"},
	}}

	d, err := Evaluate(spec, "t", results(map[string]Observation{
		"http_server_header": Present("nginx", "s", observedAt),
		"tls_cert_cn":        Present("x", "s", observedAt),
	}))
	require.NoError(t, err)
	require.Len(t, d.Evidence, 2, "one record per distinct reachable probe")
	assert.Equal(t, "http_server_header", d.Evidence[0].ProbeID)
	assert.Equal(t, Match, d.Verdict, "NOT of a mismatch matches")

	require.Len(t, d.Explanation.Children, 3)
	assert.Equal(t, KindNot, d.Explanation.Children[1].Kind)
	assert.Equal(t, Matched, d.Explanation.Children[1].Outcome)
}

func TestEvaluate_NotOfUnknownStaysUnknown(t *testing.T) {
	spec := acmeSpec()
	spec.Logic = fingerprint.Not{Child: fingerprint.Leaf{ProbeID: "tls_cert_cn"}}

	d, err := Evaluate(spec, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, d.Verdict)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	spec := acmeSpec()
	res := results(map[string]Observation{
		"http_server_header": Present("Acme/1.2", "snapshot", observedAt),
		"tls_cert_cn":        Absent("snapshot", observedAt),
	})

	first, err := Evaluate(spec, "t", res)
	require.NoError(t, err)
	second, err := Evaluate(spec, "t", res)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d1, err := first.Digest()
	require.NoError(t, err)
	d2, err := second.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestEvaluate_DoesNotModifyInputs(t *testing.T) {
	spec := acmeSpec()
	res := results(map[string]Observation{
		"http_server_header": Present("Acme/1.2", "snapshot", observedAt),
	})

	_, err := Evaluate(spec, "t", res)
	require.NoError(t, err)
	assert.Equal(t, acmeSpec(), spec)
	assert.Len(t, res, 1)
}

func TestEvaluate_SpecificationErrors(t *testing.T) {
	t.Run("unknown leaf", func(t *testing.T) {
		spec := acmeSpec()
		spec.Logic = fingerprint.AllOf("http_server_header", "ghost")
		_, err := Evaluate(spec, "t", nil)
		require.ErrorIs(t, err, fingerprint.ErrInvalidSpecification)
		assert.Equal(t, fingerprint.ErrorCodeUnknownProbe, fingerprint.ErrorCode(err))
	})

	t.Run("cycle", func(t *testing.T) {
		children := make([]fingerprint.Expr, 1)
		loop := fingerprint.And{Children: children}
		children[0] = loop

		spec := acmeSpec()
		spec.Logic = loop
		_, err := Evaluate(spec, "t", nil)
		assert.Equal(t, fingerprint.ErrorCodeCyclicLogic, fingerprint.ErrorCode(err))
	})

	t.Run("empty combinator", func(t *testing.T) {
		spec := acmeSpec()
		spec.Logic = fingerprint.Or{}
		_, err := Evaluate(spec, "t", nil)
		assert.Equal(t, fingerprint.ErrorCodeEmptyLogic, fingerprint.ErrorCode(err))
	})

	t.Run("bad pattern carries specification id", func(t *testing.T) {
		spec := acmeSpec()
		spec.Probes[0].Match = fingerprint.MatchRegex
		spec.Probes[0].Value = "("
		_, err := Evaluate(spec, "t", nil)
		var specErr *fingerprint.SpecificationError
		require.ErrorAs(t, err, &specErr)
		assert.Equal(t, "acme-router", specErr.SpecificationID)
		assert.Equal(t, "http_server_header", specErr.ProbeID)
	})
}

func TestEvaluator_LogsVerdict(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	e := NewEvaluator(WithLogger(logger))
	_, err := e.Evaluate(acmeSpec(), "10.0.0.1", nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"verdict":"indeterminate"`)
	assert.Contains(t, buf.String(), `"probe":"tls_cert_cn"`)
}

func TestDecision_Counts(t *testing.T) {
	d, err := Evaluate(acmeSpec(), "t", results(map[string]Observation{
		"http_server_header": Present("nginx", "s", observedAt),
	}))
	require.NoError(t, err)
	m, n, u := d.Counts()
	assert.Equal(t, 0, m)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, u)
}

func TestEvaluator_Check(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.Check(acmeSpec()))

	spec := acmeSpec()
	spec.Probes[1].Match = fingerprint.MatchVersionEqual
	spec.Probes[1].Value = "not-a-version"
	err := e.Check(spec)
	assert.Equal(t, fingerprint.ErrorCodeInvalidPattern, fingerprint.ErrorCode(err))

	// Unreachable probes are not checked.
	spec.Logic = fingerprint.Leaf{ProbeID: "http_server_header"}
	require.NoError(t, e.Check(spec))
}
