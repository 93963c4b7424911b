package config

import (
	"fmt"
	"sort"

	"github.com/caarlos0/env/v10"
)

type options struct {
	prefix      string
	environment map[string]string
}

// Option adjusts how Load reads variables.
type Option func(*options)

// WithPrefix looks every tag up as prefix+name, so `env:"HTTP_PORT"` with
// prefix "STOREFRONT_" reads STOREFRONT_HTTP_PORT.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvironment reads from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// Load fills cfg from its `env` tags and returns the names of the
// variables that were explicitly set, sorted. Fields left on their
// envDefault are not reported.
func Load(cfg any, opts ...Option) ([]string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var overridden []string
	err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
		OnSet: func(tag string, _ any, isDefault bool) {
			if !isDefault {
				overridden = append(overridden, tag)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	sort.Strings(overridden)
	return overridden, nil
}
