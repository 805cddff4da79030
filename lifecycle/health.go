package lifecycle

import (
	"context"

	"github.com/GoCodeAlone/hotswap/registry"
)

// HealthCheckable is implemented by instances that can report their own
// health. A candidate's Health probe takes precedence over it.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) (bool, error)
}

type healthCheck func(ctx context.Context) (bool, error)

// healthChecks returns the checks that apply to instance. An empty result
// means the instance is treated as healthy.
func healthChecks(c registry.Candidate, instance any) []healthCheck {
	if c.Health != nil {
		probe := c.Health
		return []healthCheck{func(ctx context.Context) (bool, error) { return probe(ctx, instance) }}
	}
	if hc, ok := instance.(HealthCheckable); ok {
		return []healthCheck{hc.HealthCheck}
	}
	return nil
}

// checkHealth runs every check under the health-check timeout and returns
// the first failure.
func (m *Manager) checkHealth(ctx context.Context, c registry.Candidate, instance any) error {
	for _, check := range healthChecks(c, instance) {
		healthy, err := runStep(ctx, m.timeouts.HealthCheck, func(ctx context.Context) (bool, error) {
			return check(ctx)
		})
		if err != nil {
			return err
		}
		if !healthy {
			return ErrUnhealthy
		}
	}
	return nil
}
