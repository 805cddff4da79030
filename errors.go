package hotswap

import (
	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Error is the typed failure returned by Activate and Swap.
type Error = lifecycle.Error

// Lifecycle failures, matchable with errors.Is on any error returned by
// Activate or Swap.
var (
	ErrNoCandidate       = lifecycle.ErrNoCandidate
	ErrFactoryResolution = lifecycle.ErrFactoryResolution
	ErrInstantiation     = lifecycle.ErrInstantiation
	ErrHealthCheckFailed = lifecycle.ErrHealthCheckFailed
	ErrHookFailed        = lifecycle.ErrHookFailed
	ErrTimedOut          = lifecycle.ErrTimedOut
)

// Factory gate failures, wrapped by ErrFactoryResolution.
var (
	ErrFactoryDenied     = registry.ErrFactoryDenied
	ErrFactoryNotAllowed = registry.ErrFactoryNotAllowed
	ErrFactoryUnknown    = registry.ErrFactoryUnknown
)
