package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Renderer kinds accepted by New.
const (
	KindManifest = "manifest"
	KindPNG      = "png"
)

// Default output names when the workflow sets none.
const (
	DefaultFig2DPath = "figure2d.png"
	DefaultFig3DPath = "quickmap3d.png"
)

// Options configure the built-in figure builders.
type Options struct {
	// OutDir is prepended to relative output paths.
	OutDir string

	// ManifestFormat is "yaml" (default) or "json".
	ManifestFormat string

	// DPI converts fig2d figsize inches to pixels.
	DPI float64
}

func (o Options) withDefaults() Options {
	if o.ManifestFormat == "" {
		o.ManifestFormat = "yaml"
	}
	if o.DPI <= 0 {
		o.DPI = 100
	}
	return o
}

// New returns the builder for kind. Several kinds may be combined with a
// comma, e.g. "png,manifest".
func New(kind string, opts Options) (engine.FigureBuilder, error) {
	opts = opts.withDefaults()
	if opts.ManifestFormat != "yaml" && opts.ManifestFormat != "json" {
		return nil, fmt.Errorf("invalid manifest format %q", opts.ManifestFormat)
	}

	var builders Multi
	for _, k := range strings.Split(kind, ",") {
		switch strings.TrimSpace(k) {
		case KindManifest:
			builders = append(builders, &ManifestBuilder{opts: opts})
		case KindPNG:
			builders = append(builders, &PNGBuilder{opts: opts})
		default:
			return nil, fmt.Errorf("unknown renderer %q", k)
		}
	}
	if len(builders) == 1 {
		return builders[0], nil
	}
	return builders, nil
}

// Multi runs several builders in order and concatenates their artifacts.
type Multi []engine.FigureBuilder

// Build implements engine.FigureBuilder.
func (m Multi) Build(ctx context.Context, fig *engine.Figure) ([]string, error) {
	var all []string
	for _, b := range m {
		artifacts, err := b.Build(ctx, fig)
		if err != nil {
			return all, err
		}
		all = append(all, artifacts...)
	}
	return all, nil
}

// outputPath returns where the image for context c is written.
func outputPath(opts Options, fig *engine.Figure, c spec.Context) string {
	var p string
	if c == spec.Context3D {
		p = fig.Fig3D().ScreenshotPath
		if p == "" {
			p = DefaultFig3DPath
		}
	} else {
		p = fig.Fig2D().SavePath
		if p == "" {
			p = DefaultFig2DPath
		}
	}
	if opts.OutDir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(opts.OutDir, p)
	}
	return p
}

// writeFile creates parent directories and writes data.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func noteShow(fig *engine.Figure, c spec.Context, path string) {
	var show *bool
	if c == spec.Context3D {
		show = fig.Fig3D().Show
	} else {
		show = fig.Fig2D().Show
	}
	if show != nil && *show {
		log.Info().
			Str("context", string(c)).
			Str("path", path).
			Msg("Interactive display is not available; figure written to file")
	}
}
