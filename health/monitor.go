package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/logging"
)

// Static errors for health package
var (
	ErrProberNil                = errors.New("prober cannot be nil")
	ErrMonitoringAlreadyRunning = errors.New("monitoring is already running")
	ErrInvalidSchedule          = errors.New("invalid health check schedule")
)

// MonitorConfig represents configuration for the health monitor
type MonitorConfig struct {
	// Schedule is a standard cron expression or descriptor such as
	// "@every 30s".
	Schedule    string        `json:"schedule" yaml:"schedule" toml:"schedule"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	HistorySize int           `json:"history_size" yaml:"history_size" toml:"history_size"`
}

// DefaultMonitorConfig returns the configuration used when none is given.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Schedule:    "@every 30s",
		Timeout:     10 * time.Second,
		HistorySize: 100,
	}
}

// Monitor probes every installed target on a cron schedule, keeps a
// bounded history per target and reports changes of the overall status.
type Monitor struct {
	prober Prober
	config MonitorConfig
	logger logging.Logger

	mu        sync.Mutex
	last      *AggregatedStatus
	history   map[string][]*CheckResult
	callbacks []StatusChangeCallback

	runMu   sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewMonitor creates a new health monitor. Zero config fields take their
// defaults.
func NewMonitor(prober Prober, config MonitorConfig, logger logging.Logger) (*Monitor, error) {
	if prober == nil {
		return nil, ErrProberNil
	}
	defaults := DefaultMonitorConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, config.Schedule, err)
	}

	return &Monitor{
		prober:  prober,
		config:  config,
		logger:  logging.OrNop(logger),
		history: make(map[string][]*CheckResult),
	}, nil
}

// OnStatusChange registers a callback fired when the overall status changes.
func (m *Monitor) OnStatusChange(callback StatusChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Start begins probing on the configured schedule.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return ErrMonitoringAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(m.config.Schedule, func() {
		if _, err := m.CheckNow(runCtx); err != nil {
			m.logger.Error("Health check round failed", "error", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, m.config.Schedule, err)
	}

	m.logger.Info("Starting health monitor", "schedule", m.config.Schedule)
	c.Start()
	m.cron = c
	m.cancel = cancel
	m.running = true
	return nil
}

// Stop stops probing and waits for a running round to finish or ctx to end.
func (m *Monitor) Stop(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()
	done := m.cron.Stop()

	select {
	case <-done.Done():
		m.logger.Info("Health monitor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("health monitor stop: %w", ctx.Err())
	}
}

// IsMonitoring returns true if monitoring is currently active
func (m *Monitor) IsMonitoring() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// CheckNow probes every target that has an installed provider and returns
// the aggregated status.
func (m *Monitor) CheckNow(ctx context.Context) (*AggregatedStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*CheckResult
	for _, st := range m.prober.AllStatuses() {
		if st.CurrentProvider == "" {
			continue
		}
		results = append(results, m.probe(ctx, st))
	}

	m.mu.Lock()
	current := &AggregatedStatus{
		Timestamp:    time.Now(),
		CheckResults: make(map[string]*CheckResult, len(results)),
		Summary:      &StatusSummary{},
	}
	for _, r := range results {
		m.applyTrendLocked(r)
		current.CheckResults[r.Name] = r
	}
	current.OverallStatus = summarize(results, current.Summary)
	previous := m.last
	m.last = current
	callbacks := slices.Clone(m.callbacks)
	m.mu.Unlock()

	if previous == nil || previous.OverallStatus != current.OverallStatus {
		m.logger.Info("Overall health changed", "status", current.OverallStatus, "checks", current.Summary.TotalChecks)
		for _, cb := range callbacks {
			if err := cb(ctx, previous, current); err != nil {
				m.logger.Error("Health status callback failed", "error", err)
			}
		}
	}
	return current, nil
}

func (m *Monitor) probe(ctx context.Context, st lifecycle.Status) *CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	start := time.Now()
	result := &CheckResult{
		Name:      st.Domain + "/" + st.Key,
		Domain:    st.Domain,
		Key:       st.Key,
		Provider:  st.CurrentProvider,
		Timestamp: start,
	}
	switch m.prober.ProbeInstanceHealth(probeCtx, st.Domain, st.Key) {
	case lifecycle.HealthHealthy:
		result.Status = StatusHealthy
		if st.State == lifecycle.StateFailed {
			result.Status = StatusWarning
			result.Message = st.LastError
		}
	case lifecycle.HealthUnhealthy:
		result.Status = StatusCritical
		result.Message = "installed instance reported unhealthy"
	default:
		result.Status = StatusUnknown
		result.Message = "no installed instance"
	}
	result.Duration = time.Since(start)
	return result
}

// applyTrendLocked carries consecutive counters over from the previous
// result and appends to the bounded history.
func (m *Monitor) applyTrendLocked(r *CheckResult) {
	hist := m.history[r.Name]
	if n := len(hist); n > 0 {
		prev := hist[n-1]
		r.ConsecutiveFailures = prev.ConsecutiveFailures
		r.ConsecutiveSuccesses = prev.ConsecutiveSuccesses
	}
	if r.Status == StatusCritical {
		r.ConsecutiveFailures++
		r.ConsecutiveSuccesses = 0
	} else if r.Status == StatusHealthy {
		r.ConsecutiveSuccesses++
		r.ConsecutiveFailures = 0
	}

	hist = append(hist, r)
	if over := len(hist) - m.config.HistorySize; over > 0 {
		hist = slices.Delete(hist, 0, over)
	}
	m.history[r.Name] = hist
}

// summarize fills s and returns the worst status. No results is unknown.
func summarize(results []*CheckResult, s *StatusSummary) HealthStatus {
	s.TotalChecks = len(results)
	if len(results) == 0 {
		return StatusUnknown
	}
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
			s.PassingChecks++
		case StatusWarning:
			s.WarningChecks++
		case StatusCritical:
			s.CriticalChecks++
		default:
			s.UnknownChecks++
		}
		if r.Status.severity() > overall.severity() {
			overall = r.Status
		}
	}
	return overall
}

// Status returns the result of the last round, or nil before the first.
func (m *Monitor) Status() *AggregatedStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// History returns results for target ("domain/key") recorded after since.
func (m *Monitor) History(target string, since time.Time) []*CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []*CheckResult
	for _, result := range m.history[target] {
		if result.Timestamp.After(since) {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
