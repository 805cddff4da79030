// Package lifecycle activates, swaps and retires resolved candidates and
// keeps a durable status record for every (domain, key).
package lifecycle

import (
	"slices"
	"time"
)

// State is the lifecycle state of one (domain, key).
type State string

const (
	StateUnknown    State = "UNKNOWN"
	StateActivating State = "ACTIVATING"
	StateReady      State = "READY"
	StateFailed     State = "FAILED"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateActivating, StateReady, StateFailed:
		return true
	}
	return false
}

// Status is the persisted record for one (domain, key).
type Status struct {
	Domain          string `json:"domain"`
	Key             string `json:"key"`
	State           State  `json:"state"`
	CurrentProvider string `json:"current_provider"`
	PendingProvider string `json:"pending_provider"`
	LastError       string `json:"last_error"`
	LastAttempt     string `json:"last_attempt,omitempty"`

	LastStateChangeAt time.Time `json:"last_state_change_at,omitzero"`
	LastActivatedAt   time.Time `json:"last_activated_at,omitzero"`
	LastHealthAt      time.Time `json:"last_health_at,omitzero"`

	SuccessfulSwaps       int64   `json:"successful_swaps"`
	FailedSwaps           int64   `json:"failed_swaps"`
	LastSwapDurationMS    int64   `json:"last_swap_duration_ms"`
	RecentSwapDurationsMS []int64 `json:"recent_swap_durations_ms"`
}

func (s Status) clone() Status {
	s.RecentSwapDurationsMS = slices.Clone(s.RecentSwapDurationsMS)
	return s
}

// recordDuration appends d to the sliding window, dropping the oldest
// samples beyond capacity.
func (s *Status) recordDuration(d time.Duration, capacity int) {
	ms := d.Milliseconds()
	s.LastSwapDurationMS = ms
	s.RecentSwapDurationsMS = append(s.RecentSwapDurationsMS, ms)
	if over := len(s.RecentSwapDurationsMS) - capacity; over > 0 {
		s.RecentSwapDurationsMS = slices.Delete(s.RecentSwapDurationsMS, 0, over)
	}
}

// HealthStatus is the outcome of probing an installed instance.
type HealthStatus int

const (
	// HealthUnknown means there was nothing to probe: no installed
	// instance or no candidate for the current provider.
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}
