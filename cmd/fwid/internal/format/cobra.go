package format

import (
	"os"

	"github.com/spf13/cobra"
)

// noColorEnv disables colors regardless of flags (https://no-color.org).
const noColorEnv = "NO_COLOR"

// FromCommand derives a Formatter from cmd's writers and the fwid output
// flags: --output, --quiet and --no-color from the root command, and
// --explain where the subcommand defines it. Flags that are not defined
// keep their defaults.
func FromCommand(cmd *cobra.Command) Formatter {
	flags := cmd.Flags()
	boolFlag := func(name string) bool {
		v, err := flags.GetBool(name)
		return err == nil && v
	}

	opts := Options{Mode: ModeTable, Color: true}
	if mode, err := flags.GetString("output"); err == nil {
		opts.Mode = ParseMode(mode)
	}
	opts.Quiet = boolFlag("quiet")
	opts.Explain = boolFlag("explain")
	if boolFlag("no-color") || os.Getenv(noColorEnv) != "" {
		opts.Color = false
	}

	return New(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
}
