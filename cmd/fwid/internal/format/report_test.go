package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
	"github.com/vulntor/fwid/pkg/scanexec"
)

var observedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func acmeSpec() *fingerprint.Specification {
	return &fingerprint.Specification{
		ID:     "acme-router-2.1",
		Target: "Acme Router firmware 2.1",
		Probes: []fingerprint.Probe{
			{ID: "server", Protocol: fingerprint.ProtocolHTTP, Field: "headers.server", Match: fingerprint.MatchExact, Value: "AcmeHTTP/2.1", Required: true},
			{ID: "cn", Protocol: fingerprint.ProtocolTLS, Field: "certificate.subject.cn", Match: fingerprint.MatchExact, Value: "acme-router", Required: true},
		},
		Logic: fingerprint.AllOf("server", "cn"),
	}
}

func scanResult(t *testing.T) *scanexec.Result {
	t.Helper()
	spec := acmeSpec()
	plan, err := engine.Plan(spec)
	require.NoError(t, err)

	matched, err := engine.Evaluate(spec, "10.0.0.1", engine.Results{
		"server": {ProbeID: "server", Observation: engine.Present("AcmeHTTP/2.1", "snapshot", observedAt)},
		"cn":     {ProbeID: "cn", Observation: engine.Present("acme-router", "snapshot", observedAt)},
	})
	require.NoError(t, err)

	unknown, err := engine.Evaluate(spec, "10.0.0.2", engine.Results{
		"server": {ProbeID: "server", Observation: engine.Present("AcmeHTTP/2.1", "snapshot", observedAt)},
	})
	require.NoError(t, err)

	failure := errors.New("provider down")
	return &scanexec.Result{
		RunID:           "run-1",
		SpecificationID: spec.ID,
		Status:          "completed",
		Plan:            plan,
		Decisions: []scanexec.TargetDecision{
			{Target: "10.0.0.1", Decision: matched},
			{Target: "10.0.0.2", Decision: unknown},
			{Target: "10.0.0.3", Err: failure, Error: failure.Error()},
		},
	}
}

func TestPrintScanTable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, Options{Mode: ModeTable})

	require.NoError(t, f.PrintScan(scanResult(t)))

	out := stdout.String()
	require.Contains(t, out, "Missing Required")
	require.Contains(t, out, "10.0.0.1")
	require.Contains(t, out, "match")
	require.Contains(t, out, "indeterminate")
	require.Contains(t, out, "cn")
	require.Contains(t, out, "provider down")
	require.Contains(t, out, "3 targets, 1 match, 0 no_match, 1 indeterminate, 1 failed (run run-1)")
	require.NotContains(t, out, "└──")
}

func TestPrintScanExplain(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, Options{Mode: ModeTable, Quiet: true, Explain: true})

	require.NoError(t, f.PrintScan(scanResult(t)))

	out := stdout.String()
	require.Contains(t, out, "10.0.0.2: indeterminate")
	require.Contains(t, out, "and: unknown\n├── leaf server: matched\n└── leaf cn: unknown\n")
	require.Contains(t, out, "required field certificate.subject.cn not observed")
}

func TestPrintScanJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, Options{Mode: ModeJSON})

	require.NoError(t, f.PrintScan(scanResult(t)))

	var report ScanReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.True(t, report.Success)
	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, ScanSummary{Targets: 3, Match: 1, Indeterminate: 1, Failed: 1}, report.Summary)
	require.Len(t, report.Targets, 3)
	require.Len(t, report.Targets[0].Digest, 64)
	require.Equal(t, engine.Match, report.Targets[0].Decision.Verdict)
	require.Empty(t, report.Targets[2].Digest)
	require.Equal(t, "provider down", report.Targets[2].Error)
}

func TestNewScanReportDigestIsStable(t *testing.T) {
	first, err := NewScanReport(scanResult(t))
	require.NoError(t, err)
	second, err := NewScanReport(scanResult(t))
	require.NoError(t, err)

	require.Equal(t, first.Targets[0].Digest, second.Targets[0].Digest)
	require.NotEqual(t, first.Targets[0].Digest, first.Targets[1].Digest)
}

func TestPrintScanNil(t *testing.T) {
	f := New(&bytes.Buffer{}, &bytes.Buffer{}, Options{Mode: ModeTable})
	require.Error(t, f.PrintScan(nil))
}

func TestPrintPlan(t *testing.T) {
	spec := acmeSpec()
	spec.Probes = append(spec.Probes, fingerprint.Probe{
		ID: "server_version", Protocol: fingerprint.ProtocolHTTP, Field: "headers.server",
		Match: fingerprint.MatchVersionGreaterEq, Value: "2.1.0", Extract: `AcmeHTTP/(\S+)`,
	})
	spec.Logic = fingerprint.AllOf("server", "cn", "server_version")
	plan, err := engine.Plan(spec)
	require.NoError(t, err)

	t.Run("table", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		f := New(&stdout, &stderr, Options{Mode: ModeTable})
		require.NoError(t, f.PrintPlan(plan))

		out := stdout.String()
		require.Contains(t, out, "Shared With")
		require.Contains(t, out, "server_version")
		require.Contains(t, out, "3 queries over 2 fields")
	})

	t.Run("json", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		f := New(&stdout, &stderr, Options{Mode: ModeJSON})
		require.NoError(t, f.PrintPlan(plan))

		var decoded engine.QueryPlan
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
		require.Equal(t, []string{"server", "cn", "server_version"}, decoded.ProbeIDs())
		require.Equal(t, []string{"server_version"}, decoded.Queries[0].SharedWith)
	})
}
