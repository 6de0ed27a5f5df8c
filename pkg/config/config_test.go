package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// isolate moves the test into an empty working directory and home so no
// real configuration is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Render.Renderer != "png" || cfg.Render.ManifestFormat != "yaml" || cfg.Render.DPI != 100 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if !reflect.DeepEqual(cfg, withFile(Default(), "")) {
		t.Errorf("Load without sources differs from Default:\n%+v\n%+v", cfg, Default())
	}
}

func withFile(c *Config, file string) *Config {
	c.File = file
	return c
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	doc := `log:
  level: debug
  format: json
render:
  renderer: manifest
  manifest_format: json
policy:
  paths: [a.rego, b.rego]
metrics:
  textfile: metrics.prom
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOPOVIZ_LOG_LEVEL", "warn")
	t.Setenv("TOPOVIZ_RENDER_OUT_DIR", "figures")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q", cfg.File)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env did not override file: level = %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" || cfg.Render.Renderer != "manifest" || cfg.Render.ManifestFormat != "json" {
		t.Errorf("file values not applied: %+v %+v", cfg.Log, cfg.Render)
	}
	if cfg.Render.OutDir != "figures" {
		t.Errorf("out dir = %q", cfg.Render.OutDir)
	}
	if !reflect.DeepEqual(cfg.Policy.Paths, []string{"a.rego", "b.rego"}) {
		t.Errorf("policy paths = %v", cfg.Policy.Paths)
	}

	tc := cfg.Telemetry()
	if tc.Logging.Level != "warn" || tc.Logging.Format != "json" || tc.Metrics.Textfile != "metrics.prom" {
		t.Errorf("telemetry config = %+v", tc)
	}
}

func TestLoadLocalFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, LocalFile), []byte("render:\n  dpi: 150\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Render.DPI != 150 || cfg.File != LocalFile {
		t.Errorf("dpi = %d, file = %q", cfg.Render.DPI, cfg.File)
	}
}

func TestLoadUserFile(t *testing.T) {
	dir := isolate(t)
	userDir := filepath.Join(dir, ".config", AppName)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte("data_dir: /srv/dems\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/srv/dems" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if got := cfg.LoaderOptions().DEMStore.Dir; got != filepath.Join("/srv/dems", "dems") {
		t.Errorf("DEM store dir = %q", got)
	}
}

func TestLoadFlags(t *testing.T) {
	isolate(t)
	t.Setenv("TOPOVIZ_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("renderer", "", "")
	flags.StringSlice("policy", nil, "")
	if err := flags.Parse([]string{"--log-level", "debug", "--policy", "x.rego"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("flag did not override env: level = %q", cfg.Log.Level)
	}
	if cfg.Render.Renderer != "png" {
		t.Errorf("unset flag overrode default: renderer = %q", cfg.Render.Renderer)
	}
	if !reflect.DeepEqual(cfg.Policy.Paths, []string{"x.rego"}) {
		t.Errorf("policy paths = %v", cfg.Policy.Paths)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "bad log level", doc: "log:\n  level: loud\n", want: "invalid log level"},
		{name: "bad manifest format", doc: "render:\n  manifest_format: xml\n", want: "invalid manifest format"},
		{name: "bad dpi", doc: "render:\n  dpi: 0\n", want: "dpi must be positive"},
		{name: "otlp without endpoint", doc: "tracing:\n  enabled: true\n  exporter: otlp\n", want: "endpoint"},
		{name: "malformed yaml", doc: "log: [\n", want: "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml"), nil); err == nil {
		t.Error("missing explicit config file accepted")
	}
}
