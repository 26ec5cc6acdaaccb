// Package config loads CLI configuration from an optional file, a .env file
// and prefixed environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// NestingSeparator splits an environment variable name into nested keys.
// SMARTERMODEL_REDIS__ADDR sets redis.addr; single underscores are kept so
// keys like contact_points survive.
const NestingSeparator = "__"

type options struct {
	file     string
	envFile  string
	environ  func() []string
	defaults map[string]any
}

// Option customises Load.
type Option func(*options)

// WithFile reads a YAML, JSON or TOML file before the environment. A missing
// file is an error.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithEnvFile overrides the .env path. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// WithEnviron replaces os.Environ, mostly for tests.
func WithEnviron(environ func() []string) Option {
	return func(o *options) { o.environ = environ }
}

// WithDefaults seeds keys before anything else is read.
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) { o.defaults = defaults }
}

// Load fills target from configuration sources. prefix is the environment
// variable prefix, e.g. "SMARTERMODEL_".
func Load(prefix string, target interface{}, opts ...Option) error {
	o := options{envFile: ".env", environ: os.Environ}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	for key, value := range o.defaults {
		v.SetDefault(key, value)
	}

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", o.file, err)
		}
	}

	if o.envFile != "" {
		if err := mergeEnvFile(v, prefix, o.envFile); err != nil {
			return err
		}
	}

	applyEnv(v, prefix, o.environ())

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// mergeEnvFile applies the prefixed entries of a dotenv file. A missing file
// is ignored.
func mergeEnvFile(v *viper.Viper, prefix, path string) error {
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	// viper lower-cases dotenv keys on read.
	lowerPrefix := strings.ToLower(prefix)
	for _, key := range env.AllKeys() {
		if !strings.HasPrefix(key, lowerPrefix) {
			continue
		}
		v.Set(propertyKey(strings.TrimPrefix(key, lowerPrefix)), env.Get(key))
	}
	return nil
}

func applyEnv(v *viper.Viper, prefix string, environ []string) {
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range environ {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		v.Set(propertyKey(strings.TrimPrefix(key, prefixUpper)), value)
	}
}

// propertyKey maps REDIS__ADDR to redis.addr.
func propertyKey(name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, NestingSeparator, "."))
	return strings.Trim(key, "._")
}
