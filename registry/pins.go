package registry

import (
	"maps"
	"sync"
)

// PinTable maps domain -> key -> provider.
type PinTable map[string]map[string]string

// Pins holds an operator-supplied pinned selection table. Pins override
// priority ranking: a pinned provider is resolved explicitly. The table
// can be swapped atomically at runtime, e.g. on configuration reload.
type Pins struct {
	mu    sync.RWMutex
	table PinTable
}

// NewPins creates a pin set from table. A nil table pins nothing.
func NewPins(table PinTable) *Pins {
	p := &Pins{}
	p.Replace(table)
	return p
}

// Provider returns the pinned provider for (domain, key), or "".
func (p *Pins) Provider(domain, key string) string {
	if p == nil {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table[domain][key]
}

// Replace installs a new table, copying it.
func (p *Pins) Replace(table PinTable) {
	next := make(PinTable, len(table))
	for domain, keys := range table {
		next[domain] = maps.Clone(keys)
	}
	p.mu.Lock()
	p.table = next
	p.mu.Unlock()
}

// Table returns a copy of the current table.
func (p *Pins) Table() PinTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(PinTable, len(p.table))
	for domain, keys := range p.table {
		out[domain] = maps.Clone(keys)
	}
	return out
}

// Targets lists every pinned (domain, key).
func (p *Pins) Targets() []Target {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var targets []Target
	for domain, keys := range p.table {
		for key := range keys {
			targets = append(targets, Target{Domain: domain, Key: key})
		}
	}
	sortTargets(targets)
	return targets
}
