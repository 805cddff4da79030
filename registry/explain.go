package registry

import "fmt"

// ExplainEntry is one ranked candidate in an Explanation.
type ExplainEntry struct {
	Candidate Candidate `json:"candidate"`
	Selected  bool      `json:"selected"`
	Reason    string    `json:"reason"`
}

// Explanation describes how Resolve ranks every candidate for a target.
type Explanation struct {
	Domain   string         `json:"domain"`
	Key      string         `json:"key"`
	Provider string         `json:"provider,omitempty"`
	Ordered  []ExplainEntry `json:"ordered"`
}

// Selected returns the selected entry, if any.
func (e Explanation) Selected() (Candidate, bool) {
	for _, entry := range e.Ordered {
		if entry.Selected {
			return entry.Candidate, true
		}
	}
	return Candidate{}, false
}

// Explain returns every candidate for (domain, key) in resolution order.
// Exactly one entry is selected when Resolve with the same provider filter
// would return a candidate; none otherwise.
func (r *Resolver) Explain(domain, key, provider string) Explanation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := Target{Domain: domain, Key: key}
	ranked := r.rankedLocked(t)
	winner, found := r.resolveLocked(t, provider)

	exp := Explanation{
		Domain:   domain,
		Key:      key,
		Provider: provider,
		Ordered:  make([]ExplainEntry, 0, len(ranked)),
	}
	for _, c := range ranked {
		entry := ExplainEntry{Candidate: c}
		switch {
		case found && c.Sequence == winner.Sequence:
			entry.Selected = true
			entry.Reason = "selected"
		case provider != "" && c.Provider != provider:
			entry.Reason = fmt.Sprintf("filtered: provider %q requested", provider)
		case found:
			entry.Reason = shadowReason(c, winner)
		default:
			entry.Reason = "no winner"
		}
		exp.Ordered = append(exp.Ordered, entry)
	}
	return exp
}

func shadowReason(c, winner Candidate) string {
	switch {
	case c.Priority != winner.Priority:
		return fmt.Sprintf("lower priority (%d < %d)", c.Priority, winner.Priority)
	case c.StackLevel != winner.StackLevel:
		return fmt.Sprintf("lower stack level (%d < %d)", c.StackLevel, winner.StackLevel)
	default:
		return fmt.Sprintf("superseded by newer registration (#%d < #%d)", c.Sequence, winner.Sequence)
	}
}
