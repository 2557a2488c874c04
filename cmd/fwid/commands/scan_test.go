package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwid/cmd/fwid/internal/format"
	"github.com/vulntor/fwid/pkg/engine"
)

const labSnapshot = `
source: lab
targets:
  10.0.0.1:
    observed_at: 2024-05-01T12:00:00Z
    fields:
      http.headers.server: Acme/1.2
      tls.certificate.subject.cn: acme.local
  10.0.0.2:
    fields:
      http.headers.server: nginx
      tls.certificate.subject.cn: null
  10.0.0.3:
    fields:
      http.headers.server: Acme/1.2
`

func scanFixtures(t *testing.T) (spec, snapshot string) {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, dir, "acme.yaml", acmeSpecYAML), writeFile(t, dir, "lab.yaml", labSnapshot)
}

func decodeReport(t *testing.T, stdout string) format.ScanReport {
	t.Helper()
	var report format.ScanReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report), stdout)
	return report
}

func TestScanCommandSnapshotJSON(t *testing.T) {
	spec, snapshot := scanFixtures(t)

	stdout, _, err := execute(t, "scan", "-o", "json",
		"--spec", spec, "--observations", snapshot,
		"--target", "10.0.0.1", "--target", "10.0.0.2", "--target", "10.0.0.3", "--target", "10.0.0.9")
	require.NoError(t, err)

	report := decodeReport(t, stdout)
	assert.True(t, report.Success)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "acme-fw-1.2", report.SpecificationID)
	assert.Equal(t, format.ScanSummary{Targets: 4, Match: 1, NoMatch: 1, Indeterminate: 2}, report.Summary)

	require.Len(t, report.Targets, 4)
	verdicts := make([]engine.Verdict, 0, 4)
	for _, tr := range report.Targets {
		require.NotNil(t, tr.Decision, tr.Target)
		assert.Len(t, tr.Digest, 64)
		verdicts = append(verdicts, tr.Decision.Verdict)
	}
	assert.Equal(t, []engine.Verdict{engine.Match, engine.NoMatch, engine.Indeterminate, engine.Indeterminate}, verdicts)

	assert.Equal(t, []string{"tls_cert_cn"}, report.Targets[2].Decision.MissingRequired())
	assert.Equal(t, []string{"http_server_header", "tls_cert_cn"}, report.Targets[3].Decision.MissingRequired())
}

func TestScanCommandExplainTable(t *testing.T) {
	spec, snapshot := scanFixtures(t)
	targets := writeFile(t, t.TempDir(), "targets.txt", "# lab\n10.0.0.3\n10.0.0.1\n")

	stdout, _, err := execute(t, "scan", "--no-color", "--explain",
		"--spec", spec, "--observations", snapshot,
		"--target", "10.0.0.1", "--targets", targets)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Missing Required")
	assert.Contains(t, stdout, "10.0.0.3: indeterminate")
	assert.Contains(t, stdout, "and: unknown\n├── leaf http_server_header: matched\n└── leaf tls_cert_cn: unknown\n")
	assert.Contains(t, stdout, "2 targets, 1 match, 0 no_match, 1 indeterminate, 0 failed")
}

func TestScanCommandValidationErrors(t *testing.T) {
	spec, snapshot := scanFixtures(t)

	tests := []struct {
		name     string
		args     []string
		exitCode int
		hint     string
	}{
		{
			name:     "no providers",
			args:     []string{"scan", "--spec", spec, "--target", "10.0.0.1"},
			exitCode: 2,
			hint:     "--observations snapshot.yaml",
		},
		{
			name:     "no targets",
			args:     []string{"scan", "--spec", spec, "--observations", snapshot},
			exitCode: 2,
			hint:     "--target 10.0.0.1",
		},
		{
			name:     "no spec",
			args:     []string{"scan", "--target", "10.0.0.1", "--observations", snapshot},
			exitCode: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, append(tt.args, "--no-color")...)
			require.Error(t, err)
			assert.True(t, IsReported(err))
			assert.Equal(t, tt.exitCode, ExitCode(err))
			assert.Contains(t, stderr, "✗ Failed to scan")
			if tt.hint != "" {
				assert.Contains(t, stderr, tt.hint)
			}
		})
	}
}

func TestScanCommandNetlasRequiresKey(t *testing.T) {
	spec, _ := scanFixtures(t)
	t.Setenv("FWID_PROVIDER_NETLAS_API_KEY", "")
	t.Setenv("NETLAS_API_KEY", "")

	_, stderr, err := execute(t, "scan", "--no-color", "--spec", spec, "--target", "10.0.0.1", "--provider", "netlas")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stderr, "netlas api key is required")
}

func TestScanCommandNetlasWithSnapshotFallback(t *testing.T) {
	spec, snapshot := scanFixtures(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cli-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"data":{
			"last_updated":"2024-04-30T08:00:00Z",
			"http":{"headers":{"server":["Acme/1.2"]}},
			"certificate":{"subject":{"common_name":["other.local"]}}}}]}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("FWID_PROVIDER_NETLAS_API_KEY", "cli-key")

	stdout, _, err := execute(t, "scan", "-o", "json",
		"--spec", spec, "--observations", snapshot, "--target", "10.0.0.1",
		"--provider", "netlas", "--netlas-url", srv.URL+"/api", "--netlas-rate", "0")
	require.NoError(t, err)

	report := decodeReport(t, stdout)
	require.Len(t, report.Targets, 1)
	decision := report.Targets[0].Decision
	require.NotNil(t, decision)

	// Netlas answers HTTP and TLS ahead of the snapshot.
	assert.Equal(t, engine.NoMatch, decision.Verdict)
	assert.Equal(t, "netlas", decision.Evidence[1].Observation.Source)
	assert.Equal(t, "other.local", decision.Evidence[1].Observation.Value)
}

func TestMergeTargets(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeTargets([]string{"a", "b"}, []string{"b", "c", "a"}))
	assert.Empty(t, mergeTargets(nil, nil))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitPartialFailure, ExitCode(ErrPartialFailure))
	assert.Equal(t, 7, ExitCode(&reportedError{err: ErrPartialFailure, code: 7}))
}
