package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwid/pkg/appctx"
	"github.com/vulntor/fwid/pkg/config"
	"github.com/vulntor/fwid/pkg/logging"
	"github.com/vulntor/fwid/pkg/paths"
	"github.com/vulntor/fwid/pkg/scanexec"
)

const cliExecutable = "fwid"

// errorCodeInvalidConfig tags configuration failures in error output.
const errorCodeInvalidConfig = "INVALID_CONFIG"

// NewCommand constructs the top-level fwid CLI command, wiring global flags,
// configuration loading and logging before any subcommand runs.
func NewCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "fwid identifies firmware from passive network observations",
		Long: `fwid evaluates firmware fingerprint specifications against recorded or
live observations of network targets and reports, per target, whether the
firmware matches, does not match, or cannot be decided from the data.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = paths.DefaultConfigFile()
			}
			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return scanexec.WithErrorCode(fmt.Errorf("load configuration: %w", err), errorCodeInvalidConfig)
			}

			cfg := mgr.Get()
			if err := logging.ConfigureGlobalLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			runID := uuid.NewString()
			ctx := appctx.WithConfig(cmd.Context(), mgr)
			ctx = appctx.WithRunID(ctx, runID)

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}

			log.Debug().
				Str("run_id", runID).
				Str("config", configFile).
				Str("log_level", cfg.Log.Level).
				Msg("configuration loaded")
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default ~/.config/fwid/config.yaml)")
	cmd.PersistentFlags().StringP("output", "o", "table", "Output format: table or json")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress summaries and hints")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "fingerprint", Title: "Fingerprint Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newPlanCommand())
	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
