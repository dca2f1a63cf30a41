package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "REPSENSE_"
	envConfig  = "REPSENSE_CONFIG"
	envNesting = "__"
)

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	path string
}

// WithPath reads the YAML file at path instead of $REPSENSE_CONFIG.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		if path != "" {
			o.path = path
		}
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) from WithPath or REPSENSE_CONFIG
//  3. env (prefix REPSENSE_); a double underscore descends into nested
//     keys, e.g. REPSENSE_DEFAULT_THRESHOLDS__ENTER.
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{path: os.Getenv(envConfig)}
	for _, opt := range opts {
		opt(&o)
	}

	base := New()
	k := koanf.New(".")

	if o.path != "" {
		if err := k.Load(file.Provider(o.path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envConfig {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, envNesting, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
