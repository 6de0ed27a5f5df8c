package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/telemetry"
)

const (
	// AppName names the user configuration directory.
	AppName = "topoviz"

	// EnvPrefix is the prefix of environment overrides, e.g.
	// TOPOVIZ_LOG_LEVEL=debug.
	EnvPrefix = "TOPOVIZ"

	// LocalFile is looked up in the working directory first.
	LocalFile = "topoviz.yaml"
)

// Config is the tool configuration. Workflow files are separate; this only
// controls how runs are carried out.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	DataDir string        `mapstructure:"data_dir"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Render  RenderConfig  `mapstructure:"render"`
	Policy  PolicyConfig  `mapstructure:"policy"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Caller bool   `mapstructure:"caller"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Textfile receives the metrics in Prometheus text format after each
	// command.
	Textfile string `mapstructure:"textfile"`
}

// RenderConfig configures figure output.
type RenderConfig struct {
	// Renderer is a comma separated list of builders: manifest, png.
	Renderer       string `mapstructure:"renderer"`
	OutDir         string `mapstructure:"out_dir"`
	ManifestFormat string `mapstructure:"manifest_format"`
	DPI            int    `mapstructure:"dpi"`
}

// PolicyConfig lists Rego files evaluated against every workflow.
type PolicyConfig struct {
	Paths []string `mapstructure:"paths"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"renderer":   "render.renderer",
	"out":        "render.out_dir",
	"policy":     "policy.paths",
}

// Load reads the configuration. Values come, in increasing precedence,
// from defaults, the configuration file, TOPOVIZ_ environment variables
// and the flags in flags that were set. The file is path when given,
// otherwise ./topoviz.yaml, otherwise ~/.config/topoviz/config.yaml; a
// missing default file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	switch {
	case path != "":
		v.SetConfigFile(path)
	case fileExists(LocalFile):
		v.SetConfigFile(LocalFile)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" && !fileExists(cfg.File) {
		cfg.File = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.caller", false)

	dataDir := filepath.Join(os.TempDir(), AppName)
	if dir, err := os.UserCacheDir(); err == nil {
		dataDir = filepath.Join(dir, AppName)
	}
	v.SetDefault("data_dir", dataDir)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("render.renderer", "png")
	v.SetDefault("render.out_dir", ".")
	v.SetDefault("render.manifest_format", "yaml")
	v.SetDefault("render.dpi", 100)

	v.SetDefault("policy.paths", []string{})
}

// Validate checks values the telemetry layer does not check itself.
func (c *Config) Validate() error {
	if c.Render.Renderer == "" {
		return fmt.Errorf("render.renderer must not be empty")
	}
	if f := c.Render.ManifestFormat; f != "yaml" && f != "json" {
		return fmt.Errorf("invalid manifest format: %s (must be 'yaml' or 'json')", f)
	}
	if c.Render.DPI <= 0 {
		return fmt.Errorf("render.dpi must be positive, got %d", c.Render.DPI)
	}
	return c.Telemetry().Validate()
}

// Telemetry converts the configuration for telemetry.NewTelemetry.
func (c *Config) Telemetry() *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Logging.Level = c.Log.Level
	tc.Logging.Format = c.Log.Format
	tc.Logging.Output = c.Log.Output
	tc.Logging.EnableCaller = c.Log.Caller
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.Textfile = c.Metrics.Textfile
	return tc
}

// LoaderOptions configures the built-in loaders to cache sample DEMs under
// DataDir.
func (c *Config) LoaderOptions() loaders.Options {
	return loaders.Options{DEMStore: loaders.NewDEMStore(filepath.Join(c.DataDir, "dems"))}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
