package lifecycle

import (
	"context"
	"slices"
	"sync"

	"github.com/GoCodeAlone/hotswap/registry"
)

// SwapHook observes a swap. oldInstance is nil when nothing was installed.
// Pre-swap hooks can veto a swap by returning an error; post-swap hook
// errors are only logged.
type SwapHook func(ctx context.Context, c registry.Candidate, newInstance, oldInstance any) error

// CleanupHook runs after an instance has been retired.
type CleanupHook func(ctx context.Context, instance any) error

// Transition describes one persisted status change.
type Transition struct {
	Previous Status
	Current  Status
}

// TransitionListener is called after every persisted status change.
// Listeners run synchronously and must not block.
type TransitionListener func(Transition)

type hookSet struct {
	mu          sync.RWMutex
	preSwap     []SwapHook
	postSwap    []SwapHook
	cleanup     []CleanupHook
	transitions []TransitionListener
}

func (h *hookSet) preSwapHooks() []SwapHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.preSwap)
}

func (h *hookSet) postSwapHooks() []SwapHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.postSwap)
}

func (h *hookSet) cleanupHooks() []CleanupHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.cleanup)
}

func (h *hookSet) transitionListeners() []TransitionListener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.transitions)
}

// OnPreSwap registers a hook that runs after health checks and before the
// new instance is installed.
func (m *Manager) OnPreSwap(hook SwapHook) {
	m.hooks.mu.Lock()
	defer m.hooks.mu.Unlock()
	m.hooks.preSwap = append(m.hooks.preSwap, hook)
}

// OnPostSwap registers a hook that runs after a committed swap.
func (m *Manager) OnPostSwap(hook SwapHook) {
	m.hooks.mu.Lock()
	defer m.hooks.mu.Unlock()
	m.hooks.postSwap = append(m.hooks.postSwap, hook)
}

// OnCleanup registers a hook that runs for every retired instance.
func (m *Manager) OnCleanup(hook CleanupHook) {
	m.hooks.mu.Lock()
	defer m.hooks.mu.Unlock()
	m.hooks.cleanup = append(m.hooks.cleanup, hook)
}

// OnTransition registers a listener for status changes.
func (m *Manager) OnTransition(listener TransitionListener) {
	m.hooks.mu.Lock()
	defer m.hooks.mu.Unlock()
	m.hooks.transitions = append(m.hooks.transitions, listener)
}

// runSwapHooks runs hooks in registration order and stops at the first
// failure.
func (m *Manager) runSwapHooks(ctx context.Context, hooks []SwapHook, c registry.Candidate, newInstance, oldInstance any) error {
	for _, hook := range hooks {
		err := runStepErr(ctx, m.timeouts.Hook, func(ctx context.Context) error {
			return hook(ctx, c, newInstance, oldInstance)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
