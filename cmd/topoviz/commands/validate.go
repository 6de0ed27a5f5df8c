package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/policy"
	"github.com/topoviz/topoviz/pkg/spec"
)

// errInvalid makes validate exit non-zero after printing its report.
var errInvalid = errors.New("workflow is invalid")

type validationReport struct {
	Workflow   string             `json:"workflow"`
	Valid      bool               `json:"valid"`
	Problems   spec.Problems      `json:"problems,omitempty"`
	Violations []policy.Violation `json:"violations,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow file",
		Long: `Validate a workflow file without running it.

This command checks:
  - Syntax of the YAML, JSON or CUE document
  - Conformance to the workflow schema
  - References between inputs, data sources, maps and processors
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate a workflow
  topoviz validate relief.yaml

  # Validate with additional policies and report as JSON
  topoviz validate relief.yaml --policy policies/ --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log.Debug().Str("workflow", path).Msg("Validating workflow")

			report := validationReport{Workflow: path}
			wf, err := spec.NewParser().Load(path)
			if err != nil {
				var problems spec.Problems
				if !errors.As(err, &problems) {
					return err
				}
				report.Problems = problems
			} else {
				eng, err := current.engine(cmd.Context())
				if err != nil {
					return err
				}
				// An invalid workflow still yields its Validation.
				v, err := eng.Validate(cmd.Context(), wf)
				if v == nil {
					return err
				}
				report.Problems, report.Violations = v.Problems, v.Violations
			}
			report.Valid = len(report.Problems) == 0

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, p := range report.Problems {
					fmt.Fprintf(out, "✗ %s\n", p)
				}
				for _, v := range report.Violations {
					if v.Severity.Blocking() {
						continue
					}
					fmt.Fprintf(out, "! [%s] %s: %s", v.Severity, v.Policy, v.Message)
					if v.Path != "" {
						fmt.Fprintf(out, " (%s)", v.Path)
					}
					fmt.Fprintln(out)
				}
				if report.Valid {
					fmt.Fprintf(out, "✓ %s is valid\n", path)
				}
			}

			if !report.Valid {
				return fmt.Errorf("%w: %s (%d problems)", errInvalid, path, len(report.Problems))
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("policy", nil, "additional rego policy files or directories")

	return cmd
}
