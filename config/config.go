// Package config loads the optional schemaengine.yaml project file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "schemaengine.yaml"
)

// Config is the project configuration. Every field has a default, so a
// project without a config file still works.
type Config struct {
	Version    int            `yaml:"version" mapstructure:"version"`
	Schema     string         `yaml:"schema" mapstructure:"schema"`
	Migrations string         `yaml:"migrations" mapstructure:"migrations"`
	Database   DatabaseConfig `yaml:"database" mapstructure:"database"`
	Logging    LogConfig      `yaml:"logging,omitempty" mapstructure:"logging"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	ShadowURL string `yaml:"shadow_url,omitempty" mapstructure:"shadow_url"`
	// Schema is the Postgres schema to work in.
	Schema string `yaml:"schema,omitempty" mapstructure:"schema"`
}

type LogConfig struct {
	Level     string `yaml:"level,omitempty" mapstructure:"level"`         // debug, info, warn, error
	Directory string `yaml:"directory,omitempty" mapstructure:"directory"` // empty logs to stderr only
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path. A missing file at the default path
// yields the defaults; a missing file that was asked for explicitly is an
// error.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads the config through v, so flags bound on v beforehand take
// precedence. DATABASE_URL and SHADOW_DATABASE_URL override the file, and
// ${ENV:NAME} references in the urls are resolved last.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.BindEnv("database.url", "DATABASE_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("database.shadow_url", "SHADOW_DATABASE_URL"); err != nil {
		return nil, err
	}

	err := v.ReadInConfig()
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}
	if err := cfg.resolveEnv(); err != nil {
		return nil, fmt.Errorf("resolving config values: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("version", d.Version)
	v.SetDefault("schema", d.Schema)
	v.SetDefault("migrations", d.Migrations)
	v.SetDefault("database.schema", d.Database.Schema)
	v.SetDefault("logging.level", d.Logging.Level)
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyDefaults() {
	if c.Schema == "" {
		c.Schema = "schema.yaml"
	}
	if c.Migrations == "" {
		c.Migrations = "migrations"
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) resolveEnv() error {
	var err error
	if c.Database.URL, err = ResolveValue(c.Database.URL); err != nil {
		return fmt.Errorf("database url: %w", err)
	}
	if c.Database.ShadowURL, err = ResolveValue(c.Database.ShadowURL); err != nil {
		return fmt.Errorf("database shadow_url: %w", err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

// ResolveValue replaces ${ENV:NAME} references with the value of the
// environment variable. An unset variable is an error.
func ResolveValue(val string) (string, error) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(val, func(ref string) string {
		name := envPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s not set", missing[0])
	}
	return out, nil
}
