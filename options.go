package hotswap

import (
	"time"

	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/logging"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Option configures a Runtime
type Option func(*runtimeOptions)

type runtimeOptions struct {
	logger       logging.Logger
	cfg          *config.Config
	snapshotPath *string
	bus          Subject
	catalog      *registry.Catalog
	now          func() time.Time
}

// WithLogger sets the logger shared by every runtime component.
func WithLogger(logger logging.Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithConfig supplies pins, factory policy, provenance constants,
// timeouts, the swap window and the snapshot path.
func WithConfig(cfg *config.Config) Option {
	return func(o *runtimeOptions) {
		o.cfg = cfg
	}
}

// WithSnapshotPath overrides the configured snapshot path. An empty path
// keeps statuses in memory only.
func WithSnapshotPath(path string) Option {
	return func(o *runtimeOptions) {
		o.snapshotPath = &path
	}
}

// WithEventBus replaces the default EventBus.
func WithEventBus(bus Subject) Option {
	return func(o *runtimeOptions) {
		o.bus = bus
	}
}

// WithCatalog supplies a pre-populated factory catalog. The configured
// allowlist is applied to it; the configured denylist is not.
func WithCatalog(catalog *registry.Catalog) Option {
	return func(o *runtimeOptions) {
		o.catalog = catalog
	}
}

// WithClock overrides the time source of the resolver and the manager.
func WithClock(now func() time.Time) Option {
	return func(o *runtimeOptions) {
		o.now = now
	}
}
