package registry

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/hotswap/logging"
)

// Resolver stores candidates per (domain, key) and selects winners. All
// methods are safe for concurrent use; a registration batch becomes
// visible to readers all at once.
type Resolver struct {
	mu        sync.RWMutex
	buckets   map[Target][]Candidate
	seq       uint64
	policy    ProvenancePolicy
	now       func() time.Time
	logger    logging.Logger
	listeners []func(Candidate)
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithProvenancePolicy overrides the priority inference constants used by
// RegisterBatch.
func WithProvenancePolicy(policy ProvenancePolicy) ResolverOption {
	return func(r *Resolver) {
		r.policy = policy
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// WithClock overrides the registration timestamp source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates an empty resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		buckets: make(map[Target][]Candidate),
		policy:  DefaultProvenancePolicy(),
		now:     time.Now,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnRegister adds a listener invoked, outside the lock, for every
// registered candidate.
func (r *Resolver) OnRegister(fn func(Candidate)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Policy returns the provenance policy used for inferred priorities.
func (r *Resolver) Policy() ProvenancePolicy {
	return r.policy
}

// Register stores c, assigning the next registry sequence number and the
// registration time. Registration always succeeds; factory safety is
// checked at instantiation time.
func (r *Resolver) Register(c Candidate) Candidate {
	r.mu.Lock()
	stored := r.insertLocked(c)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Debug("Candidate registered",
		"domain", stored.Domain, "key", stored.Key, "provider", stored.Provider,
		"priority", stored.Priority, "stackLevel", stored.StackLevel, "sequence", stored.Sequence)
	notify(listeners, stored)
	return stored.clone()
}

// RegisterBatch registers candidates found in one package under a single
// lock acquisition. A non-nil priority is applied to every candidate;
// otherwise the priority is inferred from packageName and path with the
// resolver's ProvenancePolicy.
func (r *Resolver) RegisterBatch(packageName, path string, candidates []Candidate, priority *int) []Candidate {
	p := r.policy.InferPriority(packageName, path)
	if priority != nil {
		p = *priority
	}

	r.mu.Lock()
	stored := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.Priority = p
		stored = append(stored, r.insertLocked(c))
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Debug("Candidate batch registered",
		"package", packageName, "path", path, "priority", p, "count", len(stored))

	out := make([]Candidate, len(stored))
	for i, c := range stored {
		notify(listeners, c)
		out[i] = c.clone()
	}
	return out
}

func (r *Resolver) insertLocked(c Candidate) Candidate {
	r.seq++
	c = c.clone()
	c.Sequence = r.seq
	c.RegisteredAt = r.now()
	if c.Source == "" {
		c.Source = SourceManual
	}
	t := c.Target()
	r.buckets[t] = append(r.buckets[t], c)
	return c
}

func notify(listeners []func(Candidate), c Candidate) {
	for _, fn := range listeners {
		fn(c.clone())
	}
}

// Resolve returns the winning candidate for (domain, key). A non-empty
// provider restricts the choice to that provider's candidates. Among the
// remaining candidates the highest priority wins, then the highest stack
// level, then the most recent registration.
func (r *Resolver) Resolve(domain, key, provider string) (Candidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	winner, ok := r.resolveLocked(Target{Domain: domain, Key: key}, provider)
	if !ok {
		return Candidate{}, false
	}
	return winner.clone(), true
}

func (r *Resolver) resolveLocked(t Target, provider string) (Candidate, bool) {
	var (
		winner Candidate
		found  bool
	)
	for _, c := range r.buckets[t] {
		if provider != "" && c.Provider != provider {
			continue
		}
		if !found || outranks(c, winner) {
			winner = c
			found = true
		}
	}
	return winner, found
}

// Candidates returns every candidate for (domain, key) in resolution order.
func (r *Resolver) Candidates(domain, key string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rankedLocked(Target{Domain: domain, Key: key})
}

func (r *Resolver) rankedLocked(t Target) []Candidate {
	bucket := r.buckets[t]
	out := make([]Candidate, 0, len(bucket))
	for _, c := range bucket {
		out = append(out, c.clone())
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case outranks(a, b):
			return -1
		case outranks(b, a):
			return 1
		default:
			return 0
		}
	})
	return out
}

// ListActive returns the winner for every key in domain, ordered by key.
func (r *Resolver) ListActive(domain string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []Candidate
	for _, key := range r.keysLocked(domain) {
		if winner, ok := r.resolveLocked(Target{Domain: domain, Key: key}, ""); ok {
			active = append(active, winner.clone())
		}
	}
	return active
}

// ListShadowed returns every candidate in domain that is not the current
// winner for its key, ordered by key and then by rank.
func (r *Resolver) ListShadowed(domain string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var shadowed []Candidate
	for _, key := range r.keysLocked(domain) {
		ranked := r.rankedLocked(Target{Domain: domain, Key: key})
		if len(ranked) > 1 {
			shadowed = append(shadowed, ranked[1:]...)
		}
	}
	return shadowed
}

// Domains lists every domain with at least one candidate.
func (r *Resolver) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var domains []string
	for t := range r.buckets {
		if _, ok := seen[t.Domain]; !ok {
			seen[t.Domain] = struct{}{}
			domains = append(domains, t.Domain)
		}
	}
	slices.Sort(domains)
	return domains
}

// Keys lists every key registered under domain.
func (r *Resolver) Keys(domain string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked(domain)
}

func (r *Resolver) keysLocked(domain string) []string {
	var keys []string
	for t := range r.buckets {
		if t.Domain == domain {
			keys = append(keys, t.Key)
		}
	}
	slices.Sort(keys)
	return keys
}

func sortTargets(targets []Target) {
	slices.SortFunc(targets, func(a, b Target) int {
		return cmp.Or(cmp.Compare(a.Domain, b.Domain), cmp.Compare(a.Key, b.Key))
	})
}
