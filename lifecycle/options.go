package lifecycle

import (
	"time"

	"github.com/GoCodeAlone/hotswap/logging"
	"github.com/GoCodeAlone/hotswap/registry"
)

// DefaultSwapWindow is the number of swap durations kept per status.
const DefaultSwapWindow = 20

// CandidateSource resolves the winning candidate for a target.
// *registry.Resolver implements it.
type CandidateSource interface {
	Resolve(domain, key, provider string) (registry.Candidate, bool)
}

// FactoryResolver turns a factory into a constructor, enforcing whatever
// policy applies to named factories. *registry.Catalog implements it.
type FactoryResolver interface {
	Constructor(f registry.Factory) (registry.Constructor, error)
}

// PinSource supplies operator-pinned providers. *registry.Pins implements it.
type PinSource interface {
	Provider(domain, key string) string
}

// Timeouts bounds each step of the apply protocol. Zero disables the
// bound for that step.
type Timeouts struct {
	Instantiate time.Duration `json:"instantiate" yaml:"instantiate" toml:"instantiate"`
	HealthCheck time.Duration `json:"health_check" yaml:"health_check" toml:"health_check"`
	Hook        time.Duration `json:"hook" yaml:"hook" toml:"hook"`
	Cleanup     time.Duration `json:"cleanup" yaml:"cleanup" toml:"cleanup"`
}

// DefaultTimeouts returns the step timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Instantiate: 30 * time.Second,
		HealthCheck: 10 * time.Second,
		Hook:        10 * time.Second,
		Cleanup:     10 * time.Second,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNop(logger)
	}
}

// WithStore sets where statuses are persisted. Without a store statuses
// live in memory only.
func WithStore(store StatusStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithFactoryResolver sets the gate for named factories. The default
// rejects every named factory.
func WithFactoryResolver(factories FactoryResolver) Option {
	return func(m *Manager) {
		if factories != nil {
			m.factories = factories
		}
	}
}

// WithPins sets the pinned provider table consulted when Activate is
// called without an explicit provider.
func WithPins(pins PinSource) Option {
	return func(m *Manager) {
		m.pins = pins
	}
}

// WithTimeouts overrides the step timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(m *Manager) {
		m.timeouts = t
	}
}

// WithSwapWindow sets how many swap durations each status keeps.
func WithSwapWindow(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// ActivateOption configures one Activate or Swap call.
type ActivateOption func(*activateOptions)

type activateOptions struct {
	provider string
	force    bool
}

// WithProvider selects a specific provider instead of the ranked winner
// or the pinned provider.
func WithProvider(provider string) ActivateOption {
	return func(o *activateOptions) {
		o.provider = provider
	}
}

// WithForce installs the new instance even when health checks fail. Other
// failures fall back to the previous instance without returning an error.
func WithForce() ActivateOption {
	return func(o *activateOptions) {
		o.force = true
	}
}
