// Package registry provides candidate registration and deterministic resolution.
package registry

import (
	"context"
	"maps"
	"time"
)

// Source describes where a candidate came from
type Source string

const (
	SourceManual         Source = "manual"          // Registered directly from code
	SourceLocalPackage   Source = "local_package"   // Discovered from a local package manifest
	SourceRemoteManifest Source = "remote_manifest" // Produced by a verified remote manifest
	SourceEntryPoint     Source = "entry_point"     // Contributed by a plugin entry point
)

// Target identifies one logical capability: a key within a domain.
type Target struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
}

// String returns "domain/key".
func (t Target) String() string {
	return t.Domain + "/" + t.Key
}

// HealthProbe is a candidate-level health check run against a freshly
// constructed or currently installed instance.
type HealthProbe func(ctx context.Context, instance any) (bool, error)

// Candidate is one implementation offering for a (domain, key) pair.
// Candidates are immutable once registered: the resolver stores its own
// copy and hands out copies.
type Candidate struct {
	Domain     string         `json:"domain"`
	Key        string         `json:"key"`
	Provider   string         `json:"provider"`
	Factory    Factory        `json:"factory"`
	Priority   int            `json:"priority"`
	StackLevel int            `json:"stack_level"`
	Source     Source         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Health     HealthProbe    `json:"-"`

	// Assigned by the resolver at registration time.
	RegisteredAt time.Time `json:"registered_at"`
	Sequence     uint64    `json:"registry_sequence"`
}

// Target returns the (domain, key) pair this candidate competes for.
func (c Candidate) Target() Target {
	return Target{Domain: c.Domain, Key: c.Key}
}

func (c Candidate) clone() Candidate {
	c.Metadata = maps.Clone(c.Metadata)
	return c
}

// outranks reports whether a sorts before b in resolution order:
// priority desc, stack level desc, registry sequence desc.
func outranks(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.StackLevel != b.StackLevel {
		return a.StackLevel > b.StackLevel
	}
	return a.Sequence > b.Sequence
}
