package hotswap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/logging"
	"github.com/GoCodeAlone/hotswap/manifest"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Runtime owns one candidate registry and the lifecycle of every instance
// built from it.
type Runtime struct {
	resolver *registry.Resolver
	catalog  *registry.Catalog
	pins     *registry.Pins
	manager  *lifecycle.Manager
	bus      Subject
	logger   logging.Logger

	// cfgMu guards cfg and keeps pins and the allowlist changing together.
	cfgMu sync.RWMutex
	cfg   *config.Config
}

// New creates a Runtime. Without WithConfig, defaults apply and statuses
// are kept in memory unless WithSnapshotPath is given.
func New(opts ...Option) (*Runtime, error) {
	o := &runtimeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	snapshotPath := ""
	if cfg == nil {
		cfg = config.Default()
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		snapshotPath = cfg.SnapshotPath
	}
	if o.snapshotPath != nil {
		snapshotPath = *o.snapshotPath
	}

	logger := logging.OrNop(o.logger)
	rt := &Runtime{
		logger: logger,
		cfg:    cfg,
		pins:   registry.NewPins(cfg.Pins),
		bus:    o.bus,
	}
	if rt.bus == nil {
		rt.bus = NewEventBus(logger)
	}

	resolverOpts := []registry.ResolverOption{
		registry.WithLogger(logger),
		registry.WithProvenancePolicy(cfg.Provenance.Policy()),
	}
	if o.now != nil {
		resolverOpts = append(resolverOpts, registry.WithClock(o.now))
	}
	rt.resolver = registry.NewResolver(resolverOpts...)

	rt.catalog = o.catalog
	if rt.catalog == nil {
		rt.catalog = registry.NewCatalog(
			registry.WithAllowedModules(cfg.Factories.Allow...),
			registry.WithDeniedModules(cfg.Factories.Deny...),
		)
	} else if o.cfg != nil {
		rt.catalog.SetAllowlist(cfg.Factories.Allow)
	}

	managerOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithFactoryResolver(rt.catalog),
		lifecycle.WithPins(rt.pins),
		lifecycle.WithTimeouts(cfg.Timeouts.Lifecycle()),
		lifecycle.WithSwapWindow(cfg.SwapWindow),
	}
	if snapshotPath != "" {
		store, err := lifecycle.NewFileStatusStore(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("status store: %w", err)
		}
		managerOpts = append(managerOpts, lifecycle.WithStore(store))
	}
	if o.now != nil {
		managerOpts = append(managerOpts, lifecycle.WithClock(o.now))
	}
	manager, err := lifecycle.NewManager(rt.resolver, managerOpts...)
	if err != nil {
		return nil, err
	}
	rt.manager = manager

	rt.wireEvents()
	logger.Info("Hot-swap runtime created", "snapshot", snapshotPath, "pins", len(rt.pins.Targets()))
	return rt, nil
}

// Resolver returns the candidate registry.
func (r *Runtime) Resolver() *registry.Resolver { return r.resolver }

// Catalog returns the named factory catalog.
func (r *Runtime) Catalog() *registry.Catalog { return r.catalog }

// Pins returns the pinned provider table.
func (r *Runtime) Pins() *registry.Pins { return r.pins }

// Manager returns the lifecycle manager.
func (r *Runtime) Manager() *lifecycle.Manager { return r.manager }

// Events returns the subject runtime events are published on.
func (r *Runtime) Events() Subject { return r.bus }

// Config returns the configuration last applied.
func (r *Runtime) Config() *config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// Register adds a candidate to the registry.
func (r *Runtime) Register(c registry.Candidate) registry.Candidate {
	return r.resolver.Register(c)
}

// Provide makes a named constructor available for "module:Symbol"
// factory references.
func (r *Runtime) Provide(module, symbol string, fn registry.Constructor) error {
	return r.catalog.Provide(module, symbol, fn)
}

// LoadManifest reads a candidate manifest and registers its candidates as
// one batch.
func (r *Runtime) LoadManifest(path string) ([]registry.Candidate, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	registered, err := m.Register(r.resolver)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Manifest loaded", "path", path, "package", m.Package, "candidates", len(registered))
	return registered, nil
}

// LoadManifests loads every manifest listed in the configuration.
func (r *Runtime) LoadManifests() error {
	var errs []error
	for _, path := range r.Config().Manifests {
		if _, err := r.LoadManifest(path); err != nil {
			errs = append(errs, fmt.Errorf("manifest %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Activate resolves, constructs, checks and installs the winner for
// (domain, key). See lifecycle.Manager.Activate.
func (r *Runtime) Activate(ctx context.Context, domain, key string, opts ...lifecycle.ActivateOption) (any, error) {
	return r.manager.Activate(ctx, domain, key, opts...)
}

// Swap is Activate on an already installed target.
func (r *Runtime) Swap(ctx context.Context, domain, key string, opts ...lifecycle.ActivateOption) (any, error) {
	return r.manager.Swap(ctx, domain, key, opts...)
}

// ActivateConfigured activates every target listed in the configuration,
// continuing past failures.
func (r *Runtime) ActivateConfigured(ctx context.Context) error {
	var errs []error
	for _, t := range r.Config().Activate {
		var opts []lifecycle.ActivateOption
		if t.Provider != "" {
			opts = append(opts, lifecycle.WithProvider(t.Provider))
		}
		if t.Force {
			opts = append(opts, lifecycle.WithForce())
		}
		if _, err := r.manager.Activate(ctx, t.Domain, t.Key, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Probe runs the health checks of the installed instance for
// (domain, key).
func (r *Runtime) Probe(ctx context.Context, domain, key string) lifecycle.HealthStatus {
	return r.manager.ProbeInstanceHealth(ctx, domain, key)
}

// Status returns the lifecycle status for (domain, key).
func (r *Runtime) Status(domain, key string) (lifecycle.Status, bool) {
	return r.manager.Status(domain, key)
}

// ApplyConfig applies the parts of cfg that can change at runtime: pins
// and the factory allowlist. Installed instances are left alone until the
// next activation.
func (r *Runtime) ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return config.ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfgMu.Lock()
	r.pins.Replace(cfg.Pins)
	r.catalog.SetAllowlist(cfg.Factories.Allow)
	r.cfg = cfg
	r.cfgMu.Unlock()
	r.logger.Info("Runtime configuration applied", "pins", len(r.pins.Targets()), "allow", cfg.Factories.Allow)
	return nil
}

// Close retires every installed instance.
func (r *Runtime) Close(ctx context.Context) error {
	return r.manager.Close(ctx)
}

// Instance returns the installed instance for (domain, key) as a T.
func Instance[T any](r *Runtime, domain, key string) (T, bool) {
	var zero T
	inst, ok := r.manager.Instance(domain, key)
	if !ok {
		return zero, false
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (r *Runtime) wireEvents() {
	r.resolver.OnRegister(func(c registry.Candidate) {
		r.emit(context.Background(), EventTypeCandidateRegistered, subject(c.Domain, c.Key), candidateData(c))
	})

	r.manager.OnTransition(func(tr lifecycle.Transition) {
		if tr.Previous.State == tr.Current.State {
			return
		}
		r.emit(context.Background(), EventTypeTransition, subject(tr.Current.Domain, tr.Current.Key), transitionData(tr))
	})

	r.manager.OnPreSwap(func(ctx context.Context, c registry.Candidate, _, _ any) error {
		r.emit(ctx, EventTypeSwapPre, subject(c.Domain, c.Key), r.swapData(c))
		return nil
	})

	r.manager.OnPostSwap(func(ctx context.Context, c registry.Candidate, _, _ any) error {
		r.emit(ctx, EventTypeSwapCommitted, subject(c.Domain, c.Key), r.swapData(c))
		return nil
	})

	r.manager.OnCleanup(func(ctx context.Context, instance any) error {
		r.emit(ctx, EventTypeInstanceRetired, "", RetiredData{InstanceType: fmt.Sprintf("%T", instance)})
		return nil
	})
}

// swapData reads the previous provider from the status, which still names
// it until the swap commits. After commit it names c.Provider.
func (r *Runtime) swapData(c registry.Candidate) SwapData {
	data := SwapData{
		Domain:   c.Domain,
		Key:      c.Key,
		Provider: c.Provider,
		Priority: c.Priority,
		Source:   c.Source,
		Factory:  c.Factory.Ref(),
	}
	if st, ok := r.manager.Status(c.Domain, c.Key); ok && st.CurrentProvider != c.Provider {
		data.PreviousProvider = st.CurrentProvider
	}
	return data
}

func (r *Runtime) emit(ctx context.Context, eventType, subj string, data any) {
	event := NewCloudEvent(eventType, EventSource, data, nil)
	if subj != "" {
		event.SetSubject(subj)
	}
	if err := r.bus.NotifyObservers(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
