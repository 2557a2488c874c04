package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwid/cmd/fwid/internal/format"
	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

type validatedSpec struct {
	Path   string `json:"path"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Probes int    `json:"probes"`
	Logic  string `json:"logic"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <path>...",
		Short:   "Validate specification files or directories",
		GroupID: "fingerprint",
		Args:    cobra.MinimumNArgs(1),
		RunE:    runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	formatter := format.FromCommand(cmd)
	evaluator := engine.NewEvaluator()

	var validated []validatedSpec
	for _, path := range args {
		specs, err := loadSpecifications(path)
		if err != nil {
			return fail(formatter, "validate "+path, err)
		}
		for _, spec := range specs {
			if err := evaluator.Check(spec); err != nil {
				return fail(formatter, "validate "+path, err)
			}
			validated = append(validated, validatedSpec{
				Path:   path,
				ID:     spec.ID,
				Name:   spec.Name,
				Probes: len(spec.Probes),
				Logic:  fingerprint.Format(spec.Logic),
			})
			log.Debug().Str("path", path).Str("specification", spec.ID).Msg("specification valid")
		}
	}

	if formatter.Mode() == format.ModeJSON {
		return formatter.PrintJSON(map[string]any{
			"success":        true,
			"specifications": validated,
		})
	}

	rows := make([][]string, 0, len(validated))
	for _, v := range validated {
		rows = append(rows, []string{v.Path, v.ID, strconv.Itoa(v.Probes), v.Logic})
	}
	if err := formatter.PrintTable([]string{"Path", "ID", "Probes", "Logic"}, rows); err != nil {
		return err
	}
	return formatter.PrintSummary(fmt.Sprintf("✓ %d specification(s) valid", len(validated)))
}

// loadSpecifications loads one file, or every YAML file of a directory.
func loadSpecifications(path string) ([]*fingerprint.Specification, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		specs, err := fingerprint.LoadDir(path)
		if err != nil {
			return nil, err
		}
		if len(specs) == 0 {
			return nil, fmt.Errorf("no specification files in %s", path)
		}
		return specs, nil
	}
	spec, err := fingerprint.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*fingerprint.Specification{spec}, nil
}
