package commands

import (
	"github.com/spf13/cobra"

	"github.com/vulntor/fwid/cmd/fwid/internal/bind"
	"github.com/vulntor/fwid/cmd/fwid/internal/format"
	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Short:   "Show the observations a specification needs",
		Long:    "Derives the query plan of a specification: one query per probe reachable from its logic, with shared fields and correlations.",
		GroupID: "fingerprint",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)

			specPath, err := bind.BindSpecPath(cmd)
			if err != nil {
				return fail(formatter, "plan", err)
			}
			spec, err := fingerprint.LoadFile(specPath)
			if err != nil {
				return fail(formatter, "plan", err)
			}
			plan, err := engine.Plan(spec)
			if err != nil {
				return fail(formatter, "plan", err)
			}
			return formatter.PrintPlan(plan)
		},
	}

	cmd.Flags().String("spec", "", "Specification file")

	return cmd
}
