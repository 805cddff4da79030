package lifecycle

import (
	"context"
	"errors"
	"io"
	"reflect"
)

// Cleaner is the preferred way for an instance to release resources.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Shutdowner is used when an instance is neither a Cleaner nor an io.Closer.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// cleanupFunc returns the first of Cleanup, Close or Shutdown that
// instance implements, or nil.
func cleanupFunc(instance any) func(ctx context.Context) error {
	switch v := instance.(type) {
	case Cleaner:
		return v.Cleanup
	case io.Closer:
		return func(context.Context) error { return v.Close() }
	case Shutdowner:
		return v.Shutdown
	default:
		return nil
	}
}

// retire releases instance and runs the cleanup hooks. It is detached from
// the caller's cancellation so a cancelled activation still unwinds; each
// call is bounded by the cleanup timeout.
func (m *Manager) retire(ctx context.Context, domain, key, provider string, instance any) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error

	if fn := cleanupFunc(instance); fn != nil {
		if err := runStepErr(ctx, m.timeouts.Cleanup, fn); err != nil {
			errs = append(errs, &Error{
				Kind: classify(ctx, KindCleanup, err), Step: StepCleanup,
				Domain: domain, Key: key, Provider: provider, Err: err,
			})
		}
	}
	for _, hook := range m.hooks.cleanupHooks() {
		err := runStepErr(ctx, m.timeouts.Cleanup, func(ctx context.Context) error {
			return hook(ctx, instance)
		})
		if err != nil {
			errs = append(errs, &Error{
				Kind: classify(ctx, KindHookFailed, err), Step: StepCleanupHook,
				Domain: domain, Key: key, Provider: provider, Err: err,
			})
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Error("Failed to retire instance", "domain", domain, "key", key, "provider", provider, "error", err)
	} else {
		m.logger.Debug("Instance retired", "domain", domain, "key", key, "provider", provider)
	}
	return err
}

// sameInstance reports whether a and b are the same comparable value, as
// happens when a factory hands out a shared singleton.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}
