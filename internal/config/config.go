// Package config loads the sidecar config file (.sisyphus/config.yaml):
// environment profiles and named datasource connection settings, distinct
// from a scenario's own inline config block.
//
// Grounded on the teacher's runtime/app.go viper setup (profile-style
// config with an active selection plus per-profile overrides), extended
// with go-playground/validator and creasty/defaults for the datasource
// block the way the teacher validates its own plugin configs.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sisyphus-test/sisyphus/internal/dbexec"
	"github.com/sisyphus-test/sisyphus/internal/errs"
)

// Profile is one named environment: a base URL plus seed variables (layer 5
// when a scenario doesn't declare its own environment block).
type Profile struct {
	BaseURL   string         `mapstructure:"base_url"`
	Variables map[string]any `mapstructure:"variables"`
}

// Datasource names one dbexec adapter's connection settings.
type Datasource struct {
	Driver   string               `mapstructure:"driver" default:"postgres"`
	Postgres dbexec.PostgresConfig `mapstructure:"postgres"`
}

// Config is the sidecar file's full shape.
type Config struct {
	Profiles      map[string]Profile    `mapstructure:"profiles"`
	ActiveProfile string                `mapstructure:"active_profile"`
	Variables     map[string]any        `mapstructure:"variables"`
	Datasources   map[string]Datasource `mapstructure:"datasources"`
}

// Load reads path (typically .sisyphus/config.yaml) via viper, defaulting
// and validating every datasource block. A missing file is not an error:
// the core runs fine with zero profiles/datasources.
func Load(path string) (*Config, *errs.CaseError) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errs.New(errs.ClassEngine, errs.CodeYAMLParse, err.Error()).WithPath(path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.New(errs.ClassEngine, errs.CodeYAMLParse, err.Error()).WithPath(path)
	}

	validate := validator.New()
	for name, ds := range cfg.Datasources {
		if err := defaults.Set(&ds); err != nil {
			return nil, errs.New(errs.ClassEngine, errs.CodeYAMLValidation, err.Error()).WithPath(fmt.Sprintf("datasources.%s", name))
		}
		if ds.Driver == "postgres" {
			if err := validate.Struct(ds.Postgres); err != nil {
				return nil, errs.New(errs.ClassEngine, errs.CodeYAMLValidation, err.Error()).WithPath(fmt.Sprintf("datasources.%s.postgres", name))
			}
		}
		cfg.Datasources[name] = ds
	}

	return &cfg, nil
}

// ActiveProfileOverride selects name as the active profile, as the
// --profile CLI flag does, erroring if name isn't declared.
func (c *Config) ActiveProfileOverride(name string) *errs.CaseError {
	if name == "" {
		return nil
	}
	if _, ok := c.Profiles[name]; !ok {
		return errs.New(errs.ClassEngine, errs.CodeYAMLValidation, fmt.Sprintf("unknown profile %q", name)).WithPath("active_profile")
	}
	c.ActiveProfile = name
	return nil
}

// Active returns the currently-selected profile, or zero-value if none set.
func (c *Config) Active() Profile {
	if c == nil || c.ActiveProfile == "" {
		return Profile{}
	}
	return c.Profiles[c.ActiveProfile]
}
