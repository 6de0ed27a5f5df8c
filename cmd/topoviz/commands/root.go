package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/config"
	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/policy"
	"github.com/topoviz/topoviz/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	logLevel   string
	logFormat  string
)

// app is what subcommands share once the configuration is loaded.
type app struct {
	cfg *config.Config
	tel *telemetry.Telemetry
}

var current *app

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return execute(ctx, newRootCommand(version, commit, buildDate), nil, nil, nil)
}

// execute runs root with optional args and output streams, then flushes
// telemetry.
func execute(ctx context.Context, root *cobra.Command, args []string, out, errOut io.Writer) error {
	if args != nil {
		root.SetArgs(args)
	}
	if out != nil {
		root.SetOut(out)
	}
	if errOut != nil {
		root.SetErr(errOut)
	}

	err := root.ExecuteContext(ctx)
	if current != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, current.tel.Shutdown(shutdownCtx))
		current = nil
	}
	return err
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topoviz",
		Short: "topoviz - declarative raster visualization workflows",
		Long: `topoviz runs versioned workflow files that describe how to load raster
data, transform it through ordered processor chains and render 2D maps and
3D surface views.

Features:
  - Workflow files in YAML, JSON or CUE, checked against a schema
  - Typed runtime inputs from prompts, a terminal form or a parameter file
  - Masking, smoothing, multi-directional hillshade, lighting and expressions
  - Policy checks via OPA/rego
  - PNG previews and YAML/JSON figure manifests`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newParamsCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newListCommand())

	return rootCmd
}

// setup loads the configuration and starts telemetry.
func setup(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if verbose && !cmd.Flags().Changed("log-level") {
		cfg.Log.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel.Logger.SetGlobal()

	current = &app{cfg: cfg, tel: tel}
	tel.Logger.Debug().Str("config", cfg.File).Msg("Configuration loaded")
	return nil
}

// engine builds a workflow engine with the configured loaders and
// policies.
func (a *app) engine(ctx context.Context) (*engine.Engine, error) {
	pe, err := policy.NewEngine(a.tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if err := pe.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
		return nil, err
	}
	return engine.New(
		engine.WithLoaders(loaders.NewBuiltin(a.cfg.LoaderOptions())),
		engine.WithPolicy(pe),
		engine.WithTelemetry(a.tel),
	), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
