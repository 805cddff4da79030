// Package config loads hotswap runtime configuration from a file and the
// environment.
package config

import (
	"time"

	"github.com/GoCodeAlone/hotswap/health"
	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Config is the runtime configuration. Zero-valued fields with a
// `default` tag are filled in by Load.
type Config struct {
	SnapshotPath string            `yaml:"snapshot_path" toml:"snapshot_path" json:"snapshot_path" env:"SNAPSHOT_PATH" default:"hotswap-status.json" desc:"Where lifecycle statuses are persisted"`
	SwapWindow   int               `yaml:"swap_window" toml:"swap_window" json:"swap_window" env:"SWAP_WINDOW" default:"20" desc:"Swap durations kept per target"`
	Manifests    []string          `yaml:"manifests" toml:"manifests" json:"manifests" env:"MANIFESTS" desc:"Candidate manifest files loaded at startup"`
	Pins         registry.PinTable `yaml:"pins" toml:"pins" json:"pins" desc:"domain -> key -> pinned provider"`
	Activate     []TargetConfig    `yaml:"activate" toml:"activate" json:"activate" desc:"Targets activated at startup"`
	Factories    FactoryConfig     `yaml:"factories" toml:"factories" json:"factories"`
	Provenance   ProvenanceConfig  `yaml:"provenance" toml:"provenance" json:"provenance"`
	Timeouts     TimeoutConfig     `yaml:"timeouts" toml:"timeouts" json:"timeouts"`
	Health       HealthConfig      `yaml:"health" toml:"health" json:"health"`
	HTTP         HTTPConfig        `yaml:"http" toml:"http" json:"http"`
	Log          LogConfig         `yaml:"log" toml:"log" json:"log"`
}

// TargetConfig names one (domain, key) to activate, optionally pinned to a
// provider.
type TargetConfig struct {
	Domain   string `yaml:"domain" toml:"domain" json:"domain"`
	Key      string `yaml:"key" toml:"key" json:"key"`
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	Force    bool   `yaml:"force" toml:"force" json:"force"`
}

// FactoryConfig controls which named factories may be resolved.
type FactoryConfig struct {
	Allow []string `yaml:"allow" toml:"allow" json:"allow" env:"FACTORIES_ALLOW" desc:"Module prefixes named factories may come from"`
	Deny  []string `yaml:"deny" toml:"deny" json:"deny" env:"FACTORIES_DENY" desc:"Modules denied in addition to the built-in denylist"`
}

// ProvenanceConfig tunes priority inference for batch registrations.
type ProvenanceConfig struct {
	VendorBonus    int      `yaml:"vendor_bonus" toml:"vendor_bonus" json:"vendor_bonus" default:"50"`
	AdapterBonus   int      `yaml:"adapter_bonus" toml:"adapter_bonus" json:"adapter_bonus" default:"20"`
	DepthThreshold int      `yaml:"depth_threshold" toml:"depth_threshold" json:"depth_threshold" default:"4"`
	DepthPenalty   int      `yaml:"depth_penalty" toml:"depth_penalty" json:"depth_penalty" default:"2"`
	VendorHints    []string `yaml:"vendor_hints" toml:"vendor_hints" json:"vendor_hints"`
	AdapterHints   []string `yaml:"adapter_hints" toml:"adapter_hints" json:"adapter_hints"`
}

// TimeoutConfig bounds each lifecycle step.
type TimeoutConfig struct {
	Instantiate Duration `yaml:"instantiate" toml:"instantiate" json:"instantiate" env:"TIMEOUT_INSTANTIATE" default:"30s"`
	HealthCheck Duration `yaml:"health_check" toml:"health_check" json:"health_check" env:"TIMEOUT_HEALTH_CHECK" default:"10s"`
	Hook        Duration `yaml:"hook" toml:"hook" json:"hook" env:"TIMEOUT_HOOK" default:"10s"`
	Cleanup     Duration `yaml:"cleanup" toml:"cleanup" json:"cleanup" env:"TIMEOUT_CLEANUP" default:"10s"`
}

// HealthConfig configures the periodic health monitor.
type HealthConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"HEALTH_ENABLED"`
	Schedule    string   `yaml:"schedule" toml:"schedule" json:"schedule" env:"HEALTH_SCHEDULE" default:"@every 30s"`
	Timeout     Duration `yaml:"timeout" toml:"timeout" json:"timeout" env:"HEALTH_TIMEOUT" default:"10s"`
	HistorySize int      `yaml:"history_size" toml:"history_size" json:"history_size" default:"100"`
}

// HTTPConfig configures the diagnostics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr" json:"addr" env:"HTTP_ADDR" default:":8080"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" toml:"format" json:"format" env:"LOG_FORMAT" default:"console" desc:"console or json"`
}

// Policy converts the provenance settings into a resolver policy. Empty
// hint lists keep the built-in hints.
func (p ProvenanceConfig) Policy() registry.ProvenancePolicy {
	policy := registry.DefaultProvenancePolicy()
	policy.VendorBonus = p.VendorBonus
	policy.AdapterBonus = p.AdapterBonus
	policy.DepthThreshold = p.DepthThreshold
	policy.DepthPenalty = p.DepthPenalty
	if len(p.VendorHints) > 0 {
		policy.VendorHints = p.VendorHints
	}
	if len(p.AdapterHints) > 0 {
		policy.AdapterHints = p.AdapterHints
	}
	return policy
}

// Lifecycle converts the timeouts for the lifecycle manager.
func (t TimeoutConfig) Lifecycle() lifecycle.Timeouts {
	return lifecycle.Timeouts{
		Instantiate: t.Instantiate.Std(),
		HealthCheck: t.HealthCheck.Std(),
		Hook:        t.Hook.Std(),
		Cleanup:     t.Cleanup.Std(),
	}
}

// Monitor converts the health settings for the health monitor.
func (h HealthConfig) Monitor() health.MonitorConfig {
	return health.MonitorConfig{
		Schedule:    h.Schedule,
		Timeout:     h.Timeout.Std(),
		HistorySize: h.HistorySize,
	}
}

// Duration is a time.Duration written as a string such as "10s" in every
// supported format.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
