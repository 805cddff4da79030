package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/golobby/config/v3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/GoCodeAlone/hotswap/feeders"
)

// Static errors for configuration package
var (
	ErrConfigNil         = errors.New("config cannot be nil")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrConfigFeederError = errors.New("config feeder error")
)

// DefaultEnvPrefix is the environment prefix used by the CLI.
const DefaultEnvPrefix = "HOTSWAP"

const tagDefault = "default"

// Load reads path (YAML, TOML or JSON, chosen by extension) and then the
// environment variables under envPrefix, applies defaults and validates
// the result. An empty path loads from the environment only; an empty
// prefix skips the environment.
func Load(path, envPrefix string) (*Config, error) {
	cfg := &Config{}
	builder := config.New()

	if path != "" {
		f, err := feeders.ForFile(path)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		builder.AddFeeder(f)
	}
	if envPrefix != "" {
		builder.AddFeeder(feeders.NewAffixedEnvFeeder(envPrefix, ""))
	}
	builder.AddStruct(cfg)

	if err := builder.Feed(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFeederError, err)
	}
	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config holding only default values.
func Default() *Config {
	cfg := &Config{}
	if err := ApplyDefaults(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// ApplyDefaults fills zero-valued fields from their `default` tags.
func ApplyDefaults(cfg any) error {
	if cfg == nil {
		return ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: expected pointer to struct, got %T", ErrInvalidConfig, cfg)
	}
	return processStructDefaults(v.Elem())
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}
		def, ok := fieldType.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			continue
		}
		if err := feeders.SetField(field, def); err != nil {
			return fmt.Errorf("default for %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.SwapWindow <= 0 {
		add("swap_window must be positive, got %d", c.SwapWindow)
	}
	for name, d := range map[string]Duration{
		"timeouts.instantiate":  c.Timeouts.Instantiate,
		"timeouts.health_check": c.Timeouts.HealthCheck,
		"timeouts.hook":         c.Timeouts.Hook,
		"timeouts.cleanup":      c.Timeouts.Cleanup,
		"health.timeout":        c.Health.Timeout,
	} {
		if d < 0 {
			add("%s cannot be negative", name)
		}
	}
	if c.Provenance.DepthThreshold < 0 || c.Provenance.DepthPenalty < 0 {
		add("provenance depth settings cannot be negative")
	}
	if c.Health.HistorySize < 0 {
		add("health.history_size cannot be negative")
	}
	if c.Health.Schedule != "" {
		if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
			add("health.schedule %q: %v", c.Health.Schedule, err)
		}
	}
	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			add("log.level %q: %v", c.Log.Level, err)
		}
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		add("log.format must be console or json, got %q", c.Log.Format)
	}
	for i, t := range c.Activate {
		if t.Domain == "" || t.Key == "" {
			add("activate[%d] needs domain and key", i)
		}
	}
	for domain, keys := range c.Pins {
		for key, provider := range keys {
			if strings.TrimSpace(provider) == "" {
				add("pins.%s.%s has an empty provider", domain, key)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
