// Package config loads romedit's user configuration file
// (~/.config/romedit/config.yaml), grounded on the teacher's cmd/mantle
// config loader: a YAML file read into pointer-typed fields so a flag's
// "not set" state can be told apart from its zero value, with CLI flags
// always taking precedence over the file.
package config

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is romedit's on-disk configuration.
type Config struct {
	// MapsDir names a directory of map directories, resolved against a
	// --maps-dir flag by ApplyMapsDir. The dump and build commands take
	// --map as a path and do not consult it.
	MapsDir string `yaml:"maps_dir"`

	// Strict promotes warning-class errors (value overflow, invalid
	// encoding, pointer out of range) to fatal when set, per §7.
	Strict *bool `yaml:"strict"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "romedit", "config.yaml")
}

// Load reads the config file. A missing or unparseable file yields a zero
// Config rather than an error: configuration is always optional.
func Load() Config {
	p := path()
	if p == "" {
		return Config{}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// ApplyStrict resolves the effective strict-mode setting: the CLI flag
// wins if the user set it explicitly, otherwise the config file's value,
// otherwise flagDefault.
func ApplyStrict(c *cli.Command, cfg Config, flagDefault bool) bool {
	if c.IsSet("strict") {
		return c.Bool("strict")
	}
	if cfg.Strict != nil {
		return *cfg.Strict
	}
	return flagDefault
}

// ApplyMapsDir resolves the maps directory the same way: CLI flag, then
// config file, then the empty string (meaning "none configured").
func ApplyMapsDir(c *cli.Command, cfg Config, flagValue string) string {
	if c.IsSet("maps-dir") {
		return flagValue
	}
	if cfg.MapsDir != "" {
		return cfg.MapsDir
	}
	return flagValue
}

// ApplyLogLevel resolves effective log level the same way.
func ApplyLogLevel(c *cli.Command, cfg Config, flagValue string) string {
	if c.IsSet("log-level") {
		return flagValue
	}
	if cfg.LogLevel != "" {
		return cfg.LogLevel
	}
	return flagValue
}
