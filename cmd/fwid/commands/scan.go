package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwid/cmd/fwid/internal/bind"
	"github.com/vulntor/fwid/cmd/fwid/internal/format"
	"github.com/vulntor/fwid/pkg/appctx"
	"github.com/vulntor/fwid/pkg/config"
	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
	"github.com/vulntor/fwid/pkg/provider"
	"github.com/vulntor/fwid/pkg/scanexec"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate a specification against targets",
		Long: `Collects the observations a specification needs for every target and
reports a verdict per target: match, no_match, or indeterminate when required
data is missing.

Observations come from a recorded snapshot (--observations), from Netlas
(--provider netlas), or both. Netlas answers HTTP and TLS fields; the
snapshot answers everything else.`,
		Example: `  fwid scan --spec acme.yaml --target 10.0.0.1 --observations lab.yaml
  fwid scan --spec acme.yaml --targets hosts.txt --provider netlas --explain`,
		GroupID: "fingerprint",
		Args:    cobra.NoArgs,
		RunE:    runScanCommand,
	}

	cmd.Flags().String("spec", "", "Specification file to evaluate")
	cmd.Flags().StringSlice("target", nil, "Target to evaluate (repeatable)")
	cmd.Flags().String("targets", "", "File with one target per line")
	cmd.Flags().String("observations", "", "Snapshot file with recorded observations")
	cmd.Flags().StringSlice("provider", nil, "Live observation provider (netlas)")
	cmd.Flags().Int("concurrency", scanexec.DefaultConcurrency, "Targets evaluated concurrently")
	cmd.Flags().String("netlas-url", provider.DefaultNetlasBaseURL, "Netlas API base URL")
	cmd.Flags().Float64("netlas-rate", provider.DefaultNetlasRateLimit, "Netlas requests per second (0 disables pacing)")
	cmd.Flags().Int("netlas-burst", 1, "Netlas request burst size")
	cmd.Flags().Bool("explain", false, "Print evidence and logic tree for every target")
	cmd.Flags().Bool("progress", false, "Log progress events while scanning")

	return cmd
}

func runScanCommand(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := log.With().Str("command", "scan").Str("run_id", appctx.RunID(ctx)).Logger()

	params, err := bind.BindScanOptions(cmd)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to bind scan options")
		return fail(formatter, "scan", err)
	}

	spec, err := fingerprint.LoadFile(params.SpecPath)
	if err != nil {
		return fail(formatter, "scan", err)
	}

	targets := append([]string(nil), params.Targets...)
	if params.TargetsFile != "" {
		fromFile, err := scanexec.LoadTargets(params.TargetsFile)
		if err != nil {
			return fail(formatter, "scan", err)
		}
		targets = mergeTargets(targets, fromFile)
	}

	cfg := appctx.Settings(ctx)
	executor, err := buildExecutor(params, cfg, logger)
	if err != nil {
		return fail(formatter, "scan", err)
	}

	svc := scanexec.NewService(executor).
		WithEvaluator(engine.NewEvaluator(engine.WithLogger(logger))).
		WithConcurrency(cfg.Scan.Concurrency).
		WithLogger(logger)
	if params.Progress {
		svc = svc.WithProgressSink(&progressLogger{logger: logger})
	}

	logger.Info().
		Str("specification", spec.ID).
		Int("targets", len(targets)).
		Strs("providers", params.Providers).
		Str("observations", params.Observations).
		Bool("explain", params.Explain).
		Msg("Starting scan")

	res, runErr := svc.Run(ctx, spec, targets)
	if res == nil {
		logger.Error().Err(runErr).Msg("Scan execution failed")
		return fail(formatter, "scan", runErr)
	}

	if err := formatter.PrintScan(res); err != nil {
		return err
	}

	if runErr != nil {
		logger.Warn().Err(runErr).Str("status", res.Status).Msg("Scan interrupted")
		return &reportedError{err: runErr, code: 1}
	}
	if failed := res.Failed(); len(failed) > 0 {
		// Failed targets are already listed in the report.
		err := fmt.Errorf("%w: %d of %d", ErrPartialFailure, len(failed), len(res.Decisions))
		logger.Warn().Int("failed", len(failed)).Msg("Scan completed with failed targets")
		return &reportedError{err: err, code: ExitPartialFailure}
	}
	return nil
}

// buildExecutor assembles the providers requested on the command line.
// Netlas is consulted first for the fields it covers.
func buildExecutor(params bind.ScanOptions, cfg config.Config, logger zerolog.Logger) (*provider.Executor, error) {
	var providers []provider.Provider

	if params.UseNetlas() {
		netlas, err := provider.NewNetlasProvider(provider.NetlasConfig{
			APIKey:    cfg.Provider.Netlas.APIKey,
			BaseURL:   cfg.Provider.Netlas.BaseURL,
			Timeout:   cfg.Provider.Netlas.Timeout,
			RateLimit: cfg.Provider.Netlas.RateLimit,
			Burst:     cfg.Provider.Netlas.Burst,
		})
		if err != nil {
			if errors.Is(err, provider.ErrMissingAPIKey) {
				err = scanexec.WithErrorCode(
					fmt.Errorf("%w (set %s or provider.netlas.api_key)", err, config.NetlasAPIKeyEnv),
					scanexec.ErrorCode(scanexec.ErrNoProviders))
			}
			return nil, err
		}
		providers = append(providers, netlas)
	}

	if params.Observations != "" {
		snapshot, err := provider.LoadSnapshot(params.Observations)
		if err != nil {
			return nil, fmt.Errorf("load observations: %w", err)
		}
		logger.Debug().Str("source", snapshot.Name()).Int("targets", len(snapshot.Targets())).Msg("Loaded observation snapshot")
		providers = append(providers, snapshot)
	}

	if len(providers) == 0 {
		return nil, scanexec.ErrNoProviders
	}
	return provider.NewExecutor(providers, provider.WithExecutorLogger(logger)), nil
}

func mergeTargets(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

type progressLogger struct {
	logger zerolog.Logger
}

func (p *progressLogger) OnEvent(ev scanexec.ProgressEvent) {
	entry := p.logger.Info().
		Str("phase", ev.Phase).
		Str("status", ev.Status)
	if ev.Target != "" {
		entry = entry.Str("target", ev.Target)
	}
	if ev.Message != "" {
		entry = entry.Str("message", ev.Message)
	}
	entry.Msg("scan progress")
}
