package lifecycle

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every *Error matches the sentinel of its Kind with
// errors.Is, in addition to its underlying cause.
var (
	ErrNoCandidate       = errors.New("no candidate")
	ErrFactoryResolution = errors.New("factory resolution failed")
	ErrInstantiation     = errors.New("instantiation failed")
	ErrHealthCheckFailed = errors.New("health check failed")
	ErrHookFailed        = errors.New("hook failed")
	ErrTimedOut          = errors.New("step timed out")
	ErrCleanupFailed     = errors.New("cleanup failed")

	ErrUnhealthy    = errors.New("instance reported unhealthy")
	ErrNilInstance  = errors.New("constructor returned a nil instance")
	ErrStepPanicked = errors.New("step panicked")
	ErrSourceNil    = errors.New("candidate source cannot be nil")
	ErrInterrupted  = errors.New("activation interrupted")
)

// ErrorKind classifies lifecycle failures.
type ErrorKind int

const (
	KindNoCandidate ErrorKind = iota + 1
	KindFactoryResolution
	KindInstantiation
	KindHealthCheck
	KindHookFailed
	KindTimedOut
	KindCleanup
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoCandidate:
		return "no_candidate"
	case KindFactoryResolution:
		return "factory_resolution"
	case KindInstantiation:
		return "instantiation"
	case KindHealthCheck:
		return "health_check"
	case KindHookFailed:
		return "hook_failed"
	case KindTimedOut:
		return "timed_out"
	case KindCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNoCandidate:
		return ErrNoCandidate
	case KindFactoryResolution:
		return ErrFactoryResolution
	case KindInstantiation:
		return ErrInstantiation
	case KindHealthCheck:
		return ErrHealthCheckFailed
	case KindHookFailed:
		return ErrHookFailed
	case KindTimedOut:
		return ErrTimedOut
	case KindCleanup:
		return ErrCleanupFailed
	default:
		return nil
	}
}

// Step names the part of the apply protocol an error came from.
type Step string

const (
	StepResolve     Step = "resolve"
	StepFactory     Step = "factory"
	StepInstantiate Step = "instantiate"
	StepHealthCheck Step = "health_check"
	StepPreSwap     Step = "pre_swap_hook"
	StepPostSwap    Step = "post_swap_hook"
	StepCleanup     Step = "cleanup"
	StepCleanupHook Step = "cleanup_hook"
)

// Error is returned by Activate and Swap.
type Error struct {
	Kind     ErrorKind
	Step     Step
	Domain   string
	Key      string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	target := e.Domain + "/" + e.Key
	if e.Provider != "" {
		target += " (provider " + e.Provider + ")"
	}
	if e.Err == nil {
		return fmt.Sprintf("lifecycle: %s: %s at %s", target, e.Kind.sentinel(), e.Step)
	}
	return fmt.Sprintf("lifecycle: %s: %s at %s: %v", target, e.Kind.sentinel(), e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
