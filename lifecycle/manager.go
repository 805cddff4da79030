package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/hotswap/logging"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Manager drives activation and hot swap for every (domain, key). It owns
// the installed instances and their statuses; candidates are read from a
// CandidateSource.
//
// Calls for the same (domain, key) are serialized; calls for different
// keys run in parallel.
type Manager struct {
	source    CandidateSource
	factories FactoryResolver
	pins      PinSource
	store     StatusStore
	logger    logging.Logger
	now       func() time.Time
	timeouts  Timeouts
	window    int

	locks keyLocks
	hooks hookSet

	mu        sync.RWMutex
	instances map[registry.Target]any
	statuses  map[registry.Target]*Status

	// persistMu keeps snapshot writes in mutation order.
	persistMu sync.Mutex
}

// NewManager creates a Manager. When a store is configured and already
// holds a snapshot, statuses are restored from it; instances never are.
func NewManager(source CandidateSource, opts ...Option) (*Manager, error) {
	if source == nil {
		return nil, ErrSourceNil
	}
	m := &Manager{
		source:    source,
		factories: registry.NewCatalog(),
		logger:    logging.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		timeouts:  DefaultTimeouts(),
		window:    DefaultSwapWindow,
		instances: make(map[registry.Target]any),
		statuses:  make(map[registry.Target]*Status),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.store != nil {
		loaded, err := m.store.Load()
		if err != nil {
			m.logger.Error("Failed to load status snapshot, starting empty", "error", err)
		}
		for _, st := range loaded {
			st := st.clone()
			if st.State == StateActivating {
				m.logger.Warn("Activation was interrupted by a restart", "domain", st.Domain, "key", st.Key, "provider", st.PendingProvider)
				st.State = StateFailed
				st.LastError = fmt.Sprintf("%s: activation of %q interrupted by restart", ErrInterrupted, st.PendingProvider)
				st.PendingProvider = ""
				st.FailedSwaps++
			}
			m.statuses[registry.Target{Domain: st.Domain, Key: st.Key}] = &st
		}
		if len(loaded) > 0 {
			m.logger.Info("Restored lifecycle statuses", "count", len(loaded))
		}
	}
	return m, nil
}

// Activate resolves the winning candidate for (domain, key), constructs
// it, verifies its health, runs pre-swap hooks and installs it, retiring
// the previous instance. It returns the newly installed instance.
//
// On failure the previous instance stays installed and a *Error is
// returned. With WithForce, health failures are ignored and any other
// failure returns the previous instance with a nil error.
func (m *Manager) Activate(ctx context.Context, domain, key string, opts ...ActivateOption) (any, error) {
	var o activateOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := registry.Target{Domain: domain, Key: key}

	release, err := m.locks.acquire(ctx, t)
	if err != nil {
		return nil, err
	}
	defer release()

	provider := o.provider
	if provider == "" && m.pins != nil {
		provider = m.pins.Provider(domain, key)
	}
	c, ok := m.source.Resolve(domain, key, provider)
	if !ok {
		return nil, &Error{Kind: KindNoCandidate, Step: StepResolve, Domain: domain, Key: key, Provider: provider}
	}

	attempt := newAttemptID()
	started := m.now()
	log := []any{"domain", domain, "key", key, "provider", c.Provider, "attempt", attempt}

	old, hadOld := m.Instance(domain, key)
	var oldProvider string
	if st, ok := m.Status(domain, key); ok {
		oldProvider = st.CurrentProvider
	}
	m.update(t, func(s *Status) {
		s.State = StateActivating
		s.PendingProvider = c.Provider
		s.LastError = ""
		s.LastAttempt = attempt
	})
	m.logger.Debug("Activation started", append(log, "force", o.force)...)

	instance, failure := m.construct(ctx, c)
	if failure == nil {
		if err := m.checkHealth(ctx, c, instance); err != nil {
			if o.force {
				m.logger.Warn("Forcing swap over failed health check", append(log, "error", err)...)
			} else {
				failure = m.stepError(ctx, c, KindHealthCheck, StepHealthCheck, err)
			}
		}
	}
	if failure == nil {
		if err := m.runSwapHooks(ctx, m.hooks.preSwapHooks(), c, instance, old); err != nil {
			failure = m.stepError(ctx, c, KindHookFailed, StepPreSwap, err)
		}
	}

	if failure != nil {
		if instance != nil {
			_ = m.retire(ctx, domain, key, c.Provider, instance)
		}
		m.update(t, func(s *Status) {
			s.State = StateFailed
			s.PendingProvider = ""
			s.LastError = failure.Error()
			s.FailedSwaps++
			s.LastSwapDurationMS = m.now().Sub(started).Milliseconds()
		})
		if o.force {
			m.logger.Warn("Forced activation failed, keeping previous instance", append(log, "error", failure)...)
			return old, nil
		}
		m.logger.Error("Activation failed", append(log, "error", failure)...)
		return nil, failure
	}

	m.update(t, func(s *Status) {
		m.instances[t] = instance
		s.State = StateReady
		s.CurrentProvider = c.Provider
		s.PendingProvider = ""
		s.LastActivatedAt = m.now()
		s.SuccessfulSwaps++
		s.recordDuration(m.now().Sub(started), m.window)
	})
	m.logger.Info("Swap committed", log...)

	if hadOld && !sameInstance(old, instance) {
		_ = m.retire(ctx, domain, key, oldProvider, old)
	}
	for _, hook := range m.hooks.postSwapHooks() {
		if err := m.runSwapHooks(ctx, []SwapHook{hook}, c, instance, old); err != nil {
			m.logger.Error("Post-swap hook failed", append(log, "error", m.stepError(ctx, c, KindHookFailed, StepPostSwap, err))...)
		}
	}
	return instance, nil
}

// Swap replaces the instance for (domain, key). It is Activate under
// another name: a hot swap is a re-activation.
func (m *Manager) Swap(ctx context.Context, domain, key string, opts ...ActivateOption) (any, error) {
	return m.Activate(ctx, domain, key, opts...)
}

// construct resolves the candidate's factory and runs it.
func (m *Manager) construct(ctx context.Context, c registry.Candidate) (any, *Error) {
	ctor, err := m.factories.Constructor(c.Factory)
	if err != nil {
		return nil, m.stepError(ctx, c, KindFactoryResolution, StepFactory, err)
	}
	if ctor == nil {
		return nil, m.stepError(ctx, c, KindFactoryResolution, StepFactory, registry.ErrConstructorNil)
	}

	instance, err := runStepDrained(ctx, m.timeouts.Instantiate, func(ctx context.Context) (any, error) {
		return ctor(ctx)
	}, func(late any) {
		if late != nil {
			m.logger.Warn("Retiring instance built after its constructor was abandoned",
				"domain", c.Domain, "key", c.Key, "provider", c.Provider)
			_ = m.retire(ctx, c.Domain, c.Key, c.Provider, late)
		}
	})
	if err != nil {
		// A constructor may hand back a partial instance with its error.
		if instance != nil {
			_ = m.retire(ctx, c.Domain, c.Key, c.Provider, instance)
		}
		return nil, m.stepError(ctx, c, KindInstantiation, StepInstantiate, err)
	}
	if instance == nil {
		return nil, m.stepError(ctx, c, KindInstantiation, StepInstantiate, ErrNilInstance)
	}
	return instance, nil
}

func (m *Manager) stepError(ctx context.Context, c registry.Candidate, kind ErrorKind, step Step, err error) *Error {
	return &Error{
		Kind:     classify(ctx, kind, err),
		Step:     step,
		Domain:   c.Domain,
		Key:      c.Key,
		Provider: c.Provider,
		Err:      err,
	}
}

// ProbeInstanceHealth re-runs the health checks of the installed instance
// without swapping. It returns HealthUnknown when nothing is installed or
// the installed provider no longer resolves.
func (m *Manager) ProbeInstanceHealth(ctx context.Context, domain, key string) HealthStatus {
	t := registry.Target{Domain: domain, Key: key}
	release, err := m.locks.acquire(ctx, t)
	if err != nil {
		return HealthUnknown
	}
	defer release()

	m.mu.RLock()
	instance, installed := m.instances[t]
	var provider string
	if st, ok := m.statuses[t]; ok {
		provider = st.CurrentProvider
	}
	m.mu.RUnlock()
	if !installed {
		return HealthUnknown
	}
	c, ok := m.source.Resolve(domain, key, provider)
	if !ok {
		return HealthUnknown
	}

	result := HealthHealthy
	if err := m.checkHealth(ctx, c, instance); err != nil {
		result = HealthUnhealthy
		m.logger.Warn("Installed instance unhealthy", "domain", domain, "key", key, "provider", provider, "error", err)
	}
	m.update(t, func(s *Status) {
		s.LastHealthAt = m.now()
	})
	return result
}

// Instance returns the installed instance for (domain, key).
func (m *Manager) Instance(domain, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, ok := m.instances[registry.Target{Domain: domain, Key: key}]
	return instance, ok
}

// Status returns a copy of the status for (domain, key).
func (m *Manager) Status(domain, key string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[registry.Target{Domain: domain, Key: key}]
	if !ok {
		return Status{}, false
	}
	return st.clone(), true
}

// AllStatuses returns every status sorted by domain then key.
func (m *Manager) AllStatuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Installed returns the targets that currently have an instance.
func (m *Manager) Installed() []registry.Target {
	m.mu.RLock()
	targets := make([]registry.Target, 0, len(m.instances))
	for t := range m.instances {
		targets = append(targets, t)
	}
	m.mu.RUnlock()
	slices.SortFunc(targets, compareTargets)
	return targets
}

// Close retires every installed instance. Statuses are kept. Each target
// waits for its in-flight activation, so Close honours ctx while waiting.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, t := range m.Installed() {
		release, err := m.locks.acquire(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		instance, ok := m.instances[t]
		delete(m.instances, t)
		var provider string
		if st, found := m.statuses[t]; found {
			provider = st.CurrentProvider
		}
		m.mu.Unlock()
		if ok {
			if err := m.retire(ctx, t.Domain, t.Key, provider, instance); err != nil {
				errs = append(errs, err)
			}
		}
		release()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("lifecycle: close: %w", err)
	}
	return nil
}

// update mutates the status of t, persists the full map and notifies
// transition listeners. fn runs with m.mu held.
func (m *Manager) update(t registry.Target, fn func(*Status)) {
	m.persistMu.Lock()

	m.mu.Lock()
	st, ok := m.statuses[t]
	if !ok {
		st = &Status{Domain: t.Domain, Key: t.Key, State: StateUnknown}
		m.statuses[t] = st
	}
	previous := st.clone()
	fn(st)
	if st.State != previous.State {
		st.LastStateChangeAt = m.now()
	}
	current := st.clone()
	all := m.snapshotLocked()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(all); err != nil {
			m.logger.Error("Failed to persist status snapshot", "domain", t.Domain, "key", t.Key, "error", err)
		}
	}
	m.persistMu.Unlock()

	for _, listener := range m.hooks.transitionListeners() {
		listener(Transition{Previous: previous, Current: current})
	}
}

func (m *Manager) snapshotLocked() []Status {
	out := make([]Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st.clone())
	}
	slices.SortFunc(out, func(a, b Status) int {
		return cmp.Or(cmp.Compare(a.Domain, b.Domain), cmp.Compare(a.Key, b.Key))
	})
	return out
}

func compareTargets(a, b registry.Target) int {
	return cmp.Or(cmp.Compare(a.Domain, b.Domain), cmp.Compare(a.Key, b.Key))
}

// newAttemptID returns a time-ordered identifier for one activation.
func newAttemptID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
