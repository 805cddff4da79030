package cmd

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/hotswap"
)

// DemoModule is the module path of the built-in demo constructors. Allow
// it in the factories section to reference them from a manifest, e.g.
// "hotswapctl/demo:NewMemoryCache".
const DemoModule = "hotswapctl/demo"

// memoryCache is a map-backed cache used to try out swaps without
// external services.
type memoryCache struct {
	mu      sync.RWMutex
	items   map[string]string
	healthy bool
	closed  bool
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Set stores value under key. Writes to a closed cache are dropped.
func (c *memoryCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.items[key] = value
}

func (c *memoryCache) HealthCheck(context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy && !c.closed, nil
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
	return nil
}

func newMemoryCache(healthy bool) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		return &memoryCache{items: make(map[string]string), healthy: healthy}, nil
	}
}

// provideDemo registers the demo constructors with the runtime catalog.
func provideDemo(rt *hotswap.Runtime) error {
	if err := rt.Provide(DemoModule, "NewMemoryCache", newMemoryCache(true)); err != nil {
		return err
	}
	return rt.Provide(DemoModule, "NewUnhealthyCache", newMemoryCache(false))
}
