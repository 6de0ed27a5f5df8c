package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/spec"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write an example workflow",
		Long: `Write a commented example workflow to start from.

The file defaults to workflow.yaml in the current directory. An existing
file is left alone unless --force is given.`,
		Example: `  # Scaffold workflow.yaml
  topoviz init

  # Scaffold a named workflow, replacing it if present
  topoviz init relief.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "workflow.yaml"
			if len(args) > 0 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(path, []byte(spec.ExampleYAML), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			log.Debug().Str("path", path).Msg("Example workflow written")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created %s\n", path)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintf(out, "  1. Edit the data sources in %s\n", path)
			fmt.Fprintf(out, "  2. Check it: topoviz validate %s\n", path)
			fmt.Fprintf(out, "  3. Run it:   topoviz run %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
