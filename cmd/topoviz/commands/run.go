package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/factory"
	"github.com/topoviz/topoviz/pkg/render"
	"github.com/topoviz/topoviz/pkg/runner"
	"github.com/topoviz/topoviz/pkg/spec"
)

type runOptions struct {
	gui       bool
	paramFile string
	fast      bool
	mode      string
	capture   string
	watch     bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow and render its figures",
		Long: `Run a workflow: collect its inputs, load the data sources, apply every
map's processor chain and render the requested figures.

Inputs are asked for on the terminal unless a parameter file is given.
An interactive workflow asks for every input; otherwise only inputs
without a default are asked for. --fast asks only for inputs that feed
data sources and leaves everything else to its default.`,
		Example: `  # Run with terminal prompts
  topoviz run relief.yaml

  # Run with a terminal form, asking only for data inputs
  topoviz run relief.yaml --gui --fast

  # Replay a parameter file and render both figures as PNG and manifest
  topoviz run relief.yaml --file relief.yaml.params --mode both --renderer png,manifest

  # Save the built figure as a new workflow
  topoviz run relief.yaml --capture captured.yaml

  # Re-run whenever the workflow file changes
  topoviz run relief.yaml --file relief.yaml.params --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.gui, "gui", false, "collect inputs with a terminal form")
	cmd.Flags().StringVar(&opts.paramFile, "file", "", "read inputs from a parameter file")
	cmd.Flags().BoolVar(&opts.fast, "fast", false, "ask only for inputs referenced by data sources")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "figures to render (fig2d, fig3d, both)")
	cmd.Flags().String("renderer", "", "figure builders, comma separated (png, manifest)")
	cmd.Flags().String("out", "", "output directory for figures")
	cmd.Flags().StringVar(&opts.capture, "capture", "", "write the built figure as a workflow file")
	cmd.Flags().StringSlice("policy", nil, "additional rego policy files or directories")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-run when the workflow file changes")
	cmd.MarkFlagsMutuallyExclusive("file", "gui")
	cmd.MarkFlagsMutuallyExclusive("file", "fast")

	return cmd
}

func runWorkflow(ctx context.Context, out io.Writer, path string, opts runOptions) error {
	eng, err := current.engine(ctx)
	if err != nil {
		return err
	}
	builder, err := render.New(current.cfg.Render.Renderer, render.Options{
		OutDir:         current.cfg.Render.OutDir,
		ManifestFormat: current.cfg.Render.ManifestFormat,
		DPI:            float64(current.cfg.Render.DPI),
	})
	if err != nil {
		return err
	}
	collector := newCollector(opts)

	if !opts.watch {
		return runOnce(ctx, out, eng, builder, collector, path, opts)
	}

	// Inputs are collected once and reused on every change.
	collector = &onceCollector{base: collector}
	if err := runOnce(ctx, out, eng, builder, collector, path, opts); err != nil {
		log.Error().Err(err).Msg("Run failed, waiting for changes")
	}

	w, err := newSpecWatcher(path, 300*time.Millisecond)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer w.Stop()

	log.Info().Str("workflow", path).Msg("Watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			log.Info().Str("workflow", path).Msg("Workflow changed, re-running")
			if err := runOnce(ctx, out, eng, builder, collector, path, opts); err != nil {
				log.Error().Err(err).Msg("Run failed, waiting for changes")
			}
		}
	}
}

func newCollector(opts runOptions) engine.InputCollector {
	if opts.paramFile != "" {
		return runner.ParamFile{Path: opts.paramFile}
	}
	var asker interface {
		runner.Runner
		runner.Asker
	}
	if opts.gui {
		asker = runner.NewDialog(os.Stdin, os.Stdout)
	} else {
		asker = runner.NewPrompt(os.Stdin, os.Stdout)
	}
	if opts.fast {
		return runner.Fast{Asker: asker}
	}
	return asker
}

type runSummary struct {
	RunID     string   `json:"run_id"`
	Phase     string   `json:"phase"`
	Mode      string   `json:"mode"`
	Artifacts []string `json:"artifacts"`
	Captured  string   `json:"captured,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Duration  string   `json:"duration"`
}

func runOnce(ctx context.Context, out io.Writer, eng *engine.Engine, builder engine.FigureBuilder, collector engine.InputCollector, path string, opts runOptions) error {
	wf, err := spec.NewParser().Load(path)
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx, wf, engine.RunOptions{
		Source:    path,
		Collector: collector,
		Builder:   builder,
		Mode:      spec.RunMode(opts.mode),
	})
	if err != nil {
		return err
	}

	summary := runSummary{
		RunID:     res.RunID,
		Phase:     string(res.Phase),
		Mode:      string(res.Figure.Mode),
		Artifacts: res.Artifacts,
		Duration:  res.Duration.String(),
	}
	for _, w := range res.Warnings {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %s (%s)", w.Policy, w.Message, w.Path))
	}

	if opts.capture != "" {
		captured, err := factory.Capture(res.Figure, factory.Options{Loaders: eng.Loaders()})
		if err != nil {
			return fmt.Errorf("failed to capture figure: %w", err)
		}
		if err := spec.Save(opts.capture, captured); err != nil {
			return err
		}
		summary.Captured = opts.capture
	}

	if jsonOutput {
		return printJSON(out, summary)
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(out, "! %s\n", w)
	}
	for _, a := range summary.Artifacts {
		fmt.Fprintf(out, "✓ Wrote %s\n", a)
	}
	if summary.Captured != "" {
		fmt.Fprintf(out, "✓ Captured workflow: %s\n", summary.Captured)
	}
	fmt.Fprintf(out, "\nRun %s finished in %s (%s)\n", summary.RunID, summary.Duration, summary.Mode)
	return nil
}

// onceCollector asks its base collector on the first run and replays the
// answers afterwards.
type onceCollector struct {
	base engine.InputCollector
	raw  map[string]string
}

func (c *onceCollector) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	if c.raw == nil {
		raw, err := c.base.Collect(ctx, wf)
		if err != nil {
			return nil, err
		}
		c.raw = raw
	}
	return maps.Clone(c.raw), nil
}
