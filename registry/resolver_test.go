package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(provider string, priority, stack int) Candidate {
	return Candidate{
		Domain:     "adapter",
		Key:        "cache",
		Provider:   provider,
		Priority:   priority,
		StackLevel: stack,
	}
}

func TestResolverResolve(t *testing.T) {
	t.Run("should_prefer_priority_over_stack_level", func(t *testing.T) {
		r := NewResolver()
		r.Register(cand("low", 1, 10))
		r.Register(cand("high", 10, 5))

		winner, ok := r.Resolve("adapter", "cache", "")
		require.True(t, ok)
		assert.Equal(t, "high", winner.Provider)
		assert.Equal(t, 10, winner.Priority)
	})

	t.Run("should_use_stack_level_when_priority_ties", func(t *testing.T) {
		r := NewResolver()
		r.Register(cand("vendor", 5, 1))
		r.Register(cand("local", 5, 3))
		r.Register(cand("older", 5, 2))

		winner, ok := r.Resolve("adapter", "cache", "")
		require.True(t, ok)
		assert.Equal(t, "local", winner.Provider)
	})

	t.Run("should_prefer_most_recent_registration_on_exact_tie", func(t *testing.T) {
		r := NewResolver()
		first := r.Register(cand("first", 3, 3))
		second := r.Register(cand("second", 3, 3))
		assert.Greater(t, second.Sequence, first.Sequence)

		winner, ok := r.Resolve("adapter", "cache", "")
		require.True(t, ok)
		assert.Equal(t, "second", winner.Provider)
	})

	t.Run("should_supersede_same_provider_on_reregistration", func(t *testing.T) {
		r := NewResolver()
		r.Register(Candidate{Domain: "adapter", Key: "cache", Provider: "redis", Metadata: map[string]any{"v": 1}})
		r.Register(Candidate{Domain: "adapter", Key: "cache", Provider: "redis", Metadata: map[string]any{"v": 2}})

		winner, ok := r.Resolve("adapter", "cache", "redis")
		require.True(t, ok)
		assert.Equal(t, 2, winner.Metadata["v"])
		assert.Len(t, r.Candidates("adapter", "cache"), 2, "shadowed registrations remain")
	})

	t.Run("should_filter_by_provider", func(t *testing.T) {
		r := NewResolver()
		r.Register(cand("redis", 10, 0))
		r.Register(cand("memory", 1, 0))

		winner, ok := r.Resolve("adapter", "cache", "memory")
		require.True(t, ok)
		assert.Equal(t, "memory", winner.Provider)

		_, ok = r.Resolve("adapter", "cache", "memcached")
		assert.False(t, ok)
	})

	t.Run("should_return_none_for_unknown_target", func(t *testing.T) {
		r := NewResolver()
		_, ok := r.Resolve("adapter", "cache", "")
		assert.False(t, ok)
	})

	t.Run("should_be_idempotent_without_new_registrations", func(t *testing.T) {
		r := NewResolver()
		for i := range 10 {
			r.Register(cand(fmt.Sprintf("p%d", i), i%3, i%4))
		}
		first, _ := r.Resolve("adapter", "cache", "")
		for range 5 {
			again, _ := r.Resolve("adapter", "cache", "")
			assert.Equal(t, first.Sequence, again.Sequence)
		}
	})

	t.Run("should_return_lexicographic_maximum", func(t *testing.T) {
		r := NewResolver()
		var all []Candidate
		for i := range 30 {
			all = append(all, r.Register(cand(fmt.Sprintf("p%d", i), (i*7)%5, (i*3)%4)))
		}
		best := all[0]
		for _, c := range all[1:] {
			if c.Priority > best.Priority ||
				(c.Priority == best.Priority && c.StackLevel > best.StackLevel) ||
				(c.Priority == best.Priority && c.StackLevel == best.StackLevel && c.Sequence > best.Sequence) {
				best = c
			}
		}
		winner, ok := r.Resolve("adapter", "cache", "")
		require.True(t, ok)
		assert.Equal(t, best.Provider, winner.Provider)
	})
}

func TestResolverImmutability(t *testing.T) {
	r := NewResolver()
	meta := map[string]any{"region": "eu"}
	r.Register(Candidate{Domain: "service", Key: "mail", Provider: "smtp", Metadata: meta})
	meta["region"] = "us"

	got, ok := r.Resolve("service", "mail", "")
	require.True(t, ok)
	assert.Equal(t, "eu", got.Metadata["region"])

	got.Metadata["region"] = "ap"
	again, _ := r.Resolve("service", "mail", "")
	assert.Equal(t, "eu", again.Metadata["region"])
}

func TestResolverDefaults(t *testing.T) {
	r := NewResolver()
	c := r.Register(Candidate{Domain: "task", Key: "sync", Provider: "cron"})
	assert.Equal(t, SourceManual, c.Source)
	assert.False(t, c.RegisteredAt.IsZero())
	assert.Equal(t, uint64(1), c.Sequence)
}

func TestResolverRegisterBatch(t *testing.T) {
	t.Run("should_apply_uniform_priority", func(t *testing.T) {
		r := NewResolver()
		p := 7
		stored := r.RegisterBatch("acme", "plugins/acme", []Candidate{
			{Domain: "adapter", Key: "cache", Provider: "a", Priority: 100},
			{Domain: "adapter", Key: "queue", Provider: "b"},
		}, &p)
		require.Len(t, stored, 2)
		for _, c := range stored {
			assert.Equal(t, 7, c.Priority)
		}
		assert.Less(t, stored[0].Sequence, stored[1].Sequence)
	})

	t.Run("should_infer_priority_from_provenance", func(t *testing.T) {
		r := NewResolver()
		stored := r.RegisterBatch("acme", "vendor/acme/adapters", []Candidate{
			{Domain: "adapter", Key: "cache", Provider: "a"},
		}, nil)
		require.Len(t, stored, 1)
		assert.Equal(t, r.Policy().InferPriority("acme", "vendor/acme/adapters"), stored[0].Priority)
		assert.Positive(t, stored[0].Priority)
	})
}

func TestResolverListing(t *testing.T) {
	r := NewResolver()
	r.Register(Candidate{Domain: "adapter", Key: "cache", Provider: "memory", Priority: 1})
	r.Register(Candidate{Domain: "adapter", Key: "cache", Provider: "redis", Priority: 5})
	r.Register(Candidate{Domain: "adapter", Key: "blob", Provider: "s3"})
	r.Register(Candidate{Domain: "service", Key: "mail", Provider: "smtp"})

	active := r.ListActive("adapter")
	require.Len(t, active, 2)
	assert.Equal(t, "blob", active[0].Key)
	assert.Equal(t, "s3", active[0].Provider)
	assert.Equal(t, "redis", active[1].Provider)

	shadowed := r.ListShadowed("adapter")
	require.Len(t, shadowed, 1)
	assert.Equal(t, "memory", shadowed[0].Provider)

	assert.Empty(t, r.ListActive("workflow"))
	assert.Equal(t, []string{"adapter", "service"}, r.Domains())
	assert.Equal(t, []string{"blob", "cache"}, r.Keys("adapter"))
}

func TestResolverExplain(t *testing.T) {
	t.Run("should_select_exactly_the_resolve_winner", func(t *testing.T) {
		r := NewResolver()
		r.Register(cand("a", 1, 10))
		r.Register(cand("b", 10, 5))
		r.Register(cand("c", 10, 5))
		r.Register(cand("d", 4, 0))

		exp := r.Explain("adapter", "cache", "")
		require.Len(t, exp.Ordered, 4)

		selected := 0
		for i, entry := range exp.Ordered {
			if entry.Selected {
				selected++
			}
			if i > 0 {
				assert.GreaterOrEqual(t, exp.Ordered[i-1].Candidate.Priority, entry.Candidate.Priority)
			}
		}
		assert.Equal(t, 1, selected)

		winner, _ := r.Resolve("adapter", "cache", "")
		chosen, ok := exp.Selected()
		require.True(t, ok)
		assert.Equal(t, winner.Sequence, chosen.Sequence)
		assert.Equal(t, "c", chosen.Provider)
		assert.Contains(t, exp.Ordered[1].Reason, "newer registration")
		assert.Contains(t, exp.Ordered[3].Reason, "lower priority")
	})

	t.Run("should_follow_provider_filter", func(t *testing.T) {
		r := NewResolver()
		r.Register(cand("a", 1, 0))
		r.Register(cand("b", 10, 0))

		exp := r.Explain("adapter", "cache", "a")
		chosen, ok := exp.Selected()
		require.True(t, ok)
		assert.Equal(t, "a", chosen.Provider)
		assert.Contains(t, exp.Ordered[0].Reason, "filtered")
	})

	t.Run("should_select_nothing_without_winner", func(t *testing.T) {
		r := NewResolver()
		assert.Empty(t, r.Explain("adapter", "cache", "").Ordered)

		r.Register(cand("a", 1, 0))
		exp := r.Explain("adapter", "cache", "missing")
		require.Len(t, exp.Ordered, 1)
		_, ok := exp.Selected()
		assert.False(t, ok)
	})
}

func TestResolverConcurrentAccess(t *testing.T) {
	r := NewResolver()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 50 {
				r.Register(cand(fmt.Sprintf("p%d-%d", i, j), j%5, j%3))
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				exp := r.Explain("adapter", "cache", "")
				if len(exp.Ordered) > 0 {
					_, ok := exp.Selected()
					assert.True(t, ok)
				}
				r.Resolve("adapter", "cache", "")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Candidates("adapter", "cache"), 400)
}

func TestResolverOnRegister(t *testing.T) {
	r := NewResolver()
	var seen []string
	r.OnRegister(func(c Candidate) { seen = append(seen, c.Provider) })

	r.Register(cand("a", 0, 0))
	r.RegisterBatch("pkg", "pkg", []Candidate{cand("b", 0, 0), cand("c", 0, 0)}, nil)

	assert.Equal(t, []string{"a", "b", "c"}, seen)
}
