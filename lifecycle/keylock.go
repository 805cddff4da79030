package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/hotswap/registry"
)

// keyLocks serializes work per target. Each lock is a one-slot channel
// so waiters can give up when their context ends. Locks are created on
// first use and never removed.
type keyLocks struct {
	mu    sync.Mutex
	locks map[registry.Target]chan struct{}
}

func (k *keyLocks) get(t registry.Target) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[registry.Target]chan struct{})
	}
	ch, ok := k.locks[t]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[t] = ch
	}
	return ch
}

func (k *keyLocks) acquire(ctx context.Context, t registry.Target) (func(), error) {
	ch := k.get(t)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lifecycle: waiting for %s: %w", t, ctx.Err())
	}
}
