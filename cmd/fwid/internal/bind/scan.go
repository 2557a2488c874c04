package bind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/fwid/pkg/provider"
	"github.com/vulntor/fwid/pkg/scanexec"
)

// ErrSpecRequired is returned when a command needing a specification gets none.
var ErrSpecRequired = errors.New("specification file required (--spec)")

// ScanOptions holds configuration options for the scan command.
type ScanOptions struct {
	SpecPath     string
	Targets      []string
	TargetsFile  string
	Observations string
	Providers    []string
	Explain      bool
	Progress     bool
}

// UseNetlas reports whether the Netlas provider was requested.
func (o ScanOptions) UseNetlas() bool {
	for _, p := range o.Providers {
		if p == provider.NetlasName {
			return true
		}
	}
	return false
}

// BindScanOptions extracts and validates scan command flags.
//
// Flags read:
//   - --spec: Specification file to evaluate
//   - --target: Target to evaluate (repeatable)
//   - --targets: File with one target per line
//   - --observations: Snapshot file with recorded observations
//   - --provider: Live observation provider (repeatable; "netlas")
//   - --explain: Print evidence and logic tree per target
//   - --progress: Log progress events
//
// Returns an error if validation fails.
func BindScanOptions(cmd *cobra.Command) (ScanOptions, error) {
	specPath, _ := cmd.Flags().GetString("spec")
	targets, _ := cmd.Flags().GetStringSlice("target")
	targetsFile, _ := cmd.Flags().GetString("targets")
	observations, _ := cmd.Flags().GetString("observations")
	providers, _ := cmd.Flags().GetStringSlice("provider")
	explain, _ := cmd.Flags().GetBool("explain")
	progress, _ := cmd.Flags().GetBool("progress")

	opts := ScanOptions{
		SpecPath:     strings.TrimSpace(specPath),
		TargetsFile:  strings.TrimSpace(targetsFile),
		Observations: strings.TrimSpace(observations),
		Explain:      explain,
		Progress:     progress,
	}
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			opts.Targets = append(opts.Targets, t)
		}
	}
	for _, p := range providers {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			opts.Providers = append(opts.Providers, p)
		}
	}

	if opts.SpecPath == "" {
		return opts, ErrSpecRequired
	}

	if len(opts.Targets) == 0 && opts.TargetsFile == "" {
		return opts, scanexec.NewInvalidTargetError("", nil)
	}

	for _, p := range opts.Providers {
		if p != provider.NetlasName {
			return opts, fmt.Errorf("unsupported provider %q (available: %s)", p, provider.NetlasName)
		}
	}

	if opts.Observations == "" && len(opts.Providers) == 0 {
		return opts, scanexec.ErrNoProviders
	}

	return opts, nil
}

// BindSpecPath reads the --spec flag shared by plan-style commands.
func BindSpecPath(cmd *cobra.Command) (string, error) {
	specPath, _ := cmd.Flags().GetString("spec")
	specPath = strings.TrimSpace(specPath)
	if specPath == "" {
		return "", ErrSpecRequired
	}
	return specPath, nil
}
