// Package health periodically probes installed instances and aggregates
// their health into one status.
package health

import (
	"context"
	"time"

	"github.com/GoCodeAlone/hotswap/lifecycle"
)

// Prober is the part of the lifecycle manager the monitor needs.
// *lifecycle.Manager implements it.
type Prober interface {
	ProbeInstanceHealth(ctx context.Context, domain, key string) lifecycle.HealthStatus
	AllStatuses() []lifecycle.Status
}

// CheckResult represents the result of probing one target
type CheckResult struct {
	Name      string        `json:"name"`
	Domain    string        `json:"domain"`
	Key       string        `json:"key"`
	Provider  string        `json:"provider"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`

	// Trend information
	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`
}

// AggregatedStatus represents the aggregated status of all probed targets
type AggregatedStatus struct {
	OverallStatus HealthStatus            `json:"overall_status"`
	Timestamp     time.Time               `json:"timestamp"`
	CheckResults  map[string]*CheckResult `json:"check_results"`
	Summary       *StatusSummary          `json:"summary"`
}

// StatusSummary provides a summary of check results
type StatusSummary struct {
	TotalChecks    int `json:"total_checks"`
	PassingChecks  int `json:"passing_checks"`
	WarningChecks  int `json:"warning_checks"`
	CriticalChecks int `json:"critical_checks"`
	UnknownChecks  int `json:"unknown_checks"`
}

// HealthStatus represents the status of a health check
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"  // Serving, but the last swap attempt failed
	StatusCritical HealthStatus = "critical" // Installed instance reports unhealthy
	StatusUnknown  HealthStatus = "unknown"  // Nothing to probe
)

// severity orders statuses for worst-state aggregation.
func (s HealthStatus) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	default:
		return 1
	}
}

// StatusChangeCallback is called when the overall status changes
type StatusChangeCallback func(ctx context.Context, previous, current *AggregatedStatus) error
