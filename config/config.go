// Package config loads runtime settings from a TOML file layered with environment variables.
//
// The file holds one table per environment. The `default` table is always loaded,
// the table named by `<prefix>ENV` is merged over it, and finally any `<prefix>*`
// environment variables are merged on top, eg `CFG_WORKER_DEQUEUEINTERVALMS=500`
// sets `worker.dequeueintervalms`.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	koanffs "github.com/knadh/koanf/providers/fs"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

const (
	defaultEnv          = "default"
	defaultEnvPrefix    = "CFG_"
	defaultSettingsPath = "data/settings.toml"
	delim               = "."
	envDelim            = "_"
	envVarName          = "ENV"
)

type options struct {
	defaultEnv string
	envPrefix  string
	filepath   string
}

// Option is an option func for NewConfiguration.
type Option func(options *options)

// WithDefaultEnv sets the name of the table that is always loaded.
func WithDefaultEnv(env string) Option {
	return func(options *options) {
		options.defaultEnv = env
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(options *options) {
		options.envPrefix = prefix
	}
}

// WithFilePath sets the path of the TOML file inside the file system.
func WithFilePath(path string) Option {
	return func(options *options) {
		options.filepath = path
	}
}

// Configuration is a read-only view over the merged settings.
type Configuration struct {
	k   *koanf.Koanf
	env string
}

// NewConfigurationFromMap builds configuration directly from a flat or nested map.
func NewConfigurationFromMap(cfg map[string]any) (*Configuration, error) {
	k := koanf.New(delim)
	if err := k.Load(confmap.Provider(cfg, delim), nil); err != nil {
		return nil, persistent(err)
	}
	return &Configuration{k: k, env: defaultEnv}, nil
}

// NewConfiguration parses f and the environment. A nil f means environment only.
func NewConfiguration(f fs.FS, opts ...Option) (*Configuration, error) {
	options := options{
		defaultEnv: defaultEnv,
		envPrefix:  defaultEnvPrefix,
		filepath:   defaultSettingsPath,
	}
	for _, opt := range opts {
		opt(&options)
	}

	environment := os.Getenv(options.envPrefix + envVarName)
	if environment == "" {
		environment = options.defaultEnv
	}

	merged := koanf.New(delim)
	if f != nil {
		file := koanf.New(delim)
		if err := file.Load(koanffs.Provider(f, options.filepath), toml.Parser()); err != nil {
			return nil, persistent(err)
		}

		tables := []string{options.defaultEnv}
		if environment != options.defaultEnv {
			tables = append(tables, environment)
		}
		for _, table := range tables {
			settings, ok := file.Get(table).(map[string]any)
			if !ok {
				return nil, persistent(fmt.Errorf("environment settings for '%s' not found", table))
			}
			if err := merged.Load(confmap.Provider(settings, delim), nil); err != nil {
				return nil, persistent(err)
			}
		}
	}

	if err := merged.Load(env.Provider(options.envPrefix, delim, envToKey(options.envPrefix)), nil); err != nil {
		return nil, persistent(err)
	}

	return &Configuration{k: merged, env: environment}, nil
}

// Unmarshal fills a from the settings rooted at path. Missing keys leave fields untouched.
func (c Configuration) Unmarshal(path string, a any) error {
	return c.k.Unmarshal(path, a)
}

// Environment returns the name of the selected environment.
func (c Configuration) Environment() string {
	return c.env
}

// envToKey maps `PREFIX_NESTED_VALUE` to `nested.value`.
func envToKey(prefix string) func(string) string {
	return func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, prefix)), envDelim, delim)
	}
}

func persistent(err error) error {
	return errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
}
