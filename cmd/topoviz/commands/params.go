package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/runner"
	"github.com/topoviz/topoviz/pkg/spec"
)

func newParamsCommand() *cobra.Command {
	var (
		output string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "params <workflow>",
		Short: "Write a parameter file with every input's default",
		Long: `Write a parameter file listing every declared input with its default
value. Edit it and pass it to "topoviz run --file" for unattended runs.

With --strict the command fails when a required input has no default.`,
		Example: `  # Write relief.yaml.params next to the workflow
  topoviz params relief.yaml

  # Write elsewhere and require defaults for every required input
  topoviz params relief.yaml -o batch/relief.params --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := spec.NewParser().Load(args[0])
			if err != nil {
				return err
			}
			if strict {
				if err := runner.CheckDefaults(wf); err != nil {
					return err
				}
			}

			path := output
			if path == "" {
				path = runner.DefaultParamPath(args[0])
			}
			if err := runner.WriteParamFile(path, wf); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"params": path,
					"inputs": len(wf.Inputs),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d inputs)\n", path, len(wf.Inputs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "parameter file path (default <workflow>.params)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when a required input has no default")

	return cmd
}
