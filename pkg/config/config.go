// Package config loads playground's configuration from flags, environment
// (PLAYGROUND_*), config.yaml and named profiles, and resolves the file
// locations and the API key it refers to.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/playground/pkg/completion"
	"github.com/jingkaihe/playground/pkg/contextwindow"
	"github.com/jingkaihe/playground/pkg/telemetry"
)

const (
	// EnvPrefix prefixes environment variables that override configuration keys
	EnvPrefix = "PLAYGROUND"
	// ExeDirPrefix marks a path as relative to the executable's directory
	ExeDirPrefix = "$"

	DefaultKeyFile  = "$api_key"
	DefaultDatabase = "$ai.db"
)

// Config is the effective configuration
type Config struct {
	Key       string        `mapstructure:"key" yaml:"key,omitempty"`
	KeyFile   string        `mapstructure:"key_file" yaml:"key_file"`
	Database  string        `mapstructure:"database" yaml:"database"`
	Model     string        `mapstructure:"model" yaml:"model"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Proxy     string        `mapstructure:"proxy" yaml:"proxy,omitempty"`
	MaxToken  int           `mapstructure:"max_token" yaml:"max_token"`
	MaxDialog int           `mapstructure:"max_dialog" yaml:"max_dialog"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" yaml:"log_format"`

	Tracing telemetry.Config `mapstructure:"tracing" yaml:"tracing"`

	Profile  string                    `mapstructure:"profile" yaml:"profile,omitempty"`
	Profiles map[string]map[string]any `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("key_file", DefaultKeyFile)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("model", completion.DefaultModel)
	v.SetDefault("max_token", contextwindow.DefaultMaxTokens)
	v.SetDefault("max_dialog", contextwindow.DefaultMaxMessages)
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "ratio")
	v.SetDefault("tracing.ratio", 1.0)
}

// Init prepares v to read environment variables and the config file.
// A missing config file is not an error.
func Init(v *viper.Viper) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.playground")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes the configuration held by v and applies the active profile
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if cfg.Profiles != nil {
		delete(cfg.Profiles, "default")
	}
	if name := activeProfile(cfg.Profile); name != "" {
		profile, ok := cfg.Profiles[name]
		if !ok {
			return cfg, errors.Errorf("profile %q is not defined", name)
		}
		if err := applyProfile(&cfg, profile); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func activeProfile(name string) string {
	if name == "default" {
		return ""
	}
	return name
}

func applyProfile(cfg *Config, profile map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ZeroFields:       false,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}
	return nil
}

// Validate checks values that cannot be used as given
func (c Config) Validate() error {
	if c.MaxToken < 0 {
		return errors.Errorf("max_token must not be negative, got %d", c.MaxToken)
	}
	if c.MaxDialog < 0 {
		return errors.Errorf("max_dialog must not be negative, got %d", c.MaxDialog)
	}
	if c.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return c.Tracing.Validate()
}

// Redacted returns a copy with the API key masked and profiles left out
func (c Config) Redacted() Config {
	c.Key = MaskKey(c.Key)
	c.Profiles = nil
	return c
}

// YAML renders the redacted configuration
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, errors.Wrap(err, "failed to render configuration")
	}
	return out, nil
}

// MaskKey keeps only enough of a key to recognize it
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 10 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// Paths are the resolved file locations of a configuration
type Paths struct {
	Database string
	KeyFile  string
}

// ResolvePath makes p absolute. A leading "$" anchors it at exeDir, anything
// else that is relative is anchored at workDir.
func ResolvePath(p, exeDir, workDir string) string {
	if strings.HasPrefix(p, ExeDirPrefix) {
		return filepath.Join(exeDir, strings.TrimPrefix(p, ExeDirPrefix))
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}

// ResolvePaths resolves the database and key file locations against the
// running executable and the working directory.
func (c Config) ResolvePaths() (Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return Paths{}, errors.Wrap(err, "failed to locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	wd, err := os.Getwd()
	if err != nil {
		return Paths{}, errors.Wrap(err, "failed to get working directory")
	}

	exeDir := filepath.Dir(exe)
	return Paths{
		Database: ResolvePath(c.Database, exeDir, wd),
		KeyFile:  ResolvePath(c.KeyFile, exeDir, wd),
	}, nil
}

// ResolveAPIKey returns the key given directly, or else the trimmed content
// of the key file. A missing key file yields an empty key, which callers
// treat as no credential.
func (c Config) ResolveAPIKey(paths Paths) (string, error) {
	if key := strings.TrimSpace(c.Key); key != "" {
		return key, nil
	}
	if paths.KeyFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(paths.KeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read key file %s", paths.KeyFile)
	}
	return strings.TrimSpace(string(data)), nil
}
