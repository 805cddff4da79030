package hotswap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Static error variables for BDD steps
var (
	errUnexpectedProvider = errors.New("unexpected provider")
	errExpectedSuccess    = errors.New("expected activation to succeed")
	errExpectedFailure    = errors.New("expected activation to fail")
	errNoStatus           = errors.New("no status recorded")
	errStatusMismatch     = errors.New("status mismatch")
	errInstalled          = errors.New("an instance is installed")
	errBadTarget          = errors.New("target must be domain/key")
)

type hotSwapBDDContext struct {
	snapshotPath string
	runtime      *Runtime
	lastErr      error
	before       lifecycle.Status
}

func (c *hotSwapBDDContext) reset() {
	if c.runtime != nil {
		_ = c.runtime.Close(context.Background())
	}
	*c = hotSwapBDDContext{}
}

func splitTarget(target string) (string, string, error) {
	domain, key, ok := strings.Cut(target, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", errBadTarget, target)
	}
	return domain, key, nil
}

func (c *hotSwapBDDContext) aRuntimePersistingToASnapshotFile(dir string) error {
	c.snapshotPath = filepath.Join(dir, "status.json")
	rt, err := New(WithSnapshotPath(c.snapshotPath))
	if err != nil {
		return err
	}
	c.runtime = rt
	return nil
}

func (c *hotSwapBDDContext) register(provider, target string, priority, stackLevel int, healthy bool) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	c.runtime.Register(registry.Candidate{
		Domain:     domain,
		Key:        key,
		Provider:   provider,
		Priority:   priority,
		StackLevel: stackLevel,
		Factory:    registry.Direct(backend(provider, healthy)),
	})
	return nil
}

func (c *hotSwapBDDContext) aHealthyCandidate(provider, target string, priority, stackLevel int) error {
	return c.register(provider, target, priority, stackLevel, true)
}

func (c *hotSwapBDDContext) anUnhealthyCandidate(provider, target string, priority, stackLevel int) error {
	return c.register(provider, target, priority, stackLevel, false)
}

func (c *hotSwapBDDContext) shouldResolveTo(target, provider string) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	winner, ok := c.runtime.Resolver().Resolve(domain, key, "")
	if !ok || winner.Provider != provider {
		return fmt.Errorf("%w: want %q, got %q", errUnexpectedProvider, provider, winner.Provider)
	}
	return nil
}

func (c *hotSwapBDDContext) explainingShouldSelect(target, provider string) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	selected, ok := c.runtime.Resolver().Explain(domain, key, "").Selected()
	if !ok || selected.Provider != provider {
		return fmt.Errorf("%w: explain selected %q, want %q", errUnexpectedProvider, selected.Provider, provider)
	}
	return nil
}

func (c *hotSwapBDDContext) activate(target string, opts ...lifecycle.ActivateOption) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	_, c.lastErr = c.runtime.Activate(context.Background(), domain, key, opts...)
	return nil
}

func (c *hotSwapBDDContext) iActivate(target string) error {
	if err := c.activate(target); err != nil {
		return err
	}
	return c.theActivationShouldSucceed()
}

func (c *hotSwapBDDContext) iSwap(target string) error {
	return c.activate(target)
}

func (c *hotSwapBDDContext) iForceASwapOf(target string) error {
	return c.activate(target, lifecycle.WithForce())
}

func (c *hotSwapBDDContext) theActivationShouldSucceed() error {
	if c.lastErr != nil {
		return fmt.Errorf("%w: %v", errExpectedSuccess, c.lastErr)
	}
	return nil
}

func (c *hotSwapBDDContext) theActivationShouldFailWithAHealthCheckError() error {
	if !errors.Is(c.lastErr, ErrHealthCheckFailed) {
		return fmt.Errorf("%w: got %v", errExpectedFailure, c.lastErr)
	}
	return nil
}

func (c *hotSwapBDDContext) theInstalledProviderShouldBe(target, provider string) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	inst, ok := Instance[*cacheBackend](c.runtime, domain, key)
	if !ok || inst.provider != provider {
		return fmt.Errorf("%w: want installed %q", errUnexpectedProvider, provider)
	}
	return nil
}

func (c *hotSwapBDDContext) theStatusShouldBe(target, state string, successful, failed int) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	st, ok := c.runtime.Status(domain, key)
	if !ok {
		return errNoStatus
	}
	if string(st.State) != state || st.SuccessfulSwaps != int64(successful) || st.FailedSwaps != int64(failed) {
		return fmt.Errorf("%w: state=%s successful=%d failed=%d", errStatusMismatch, st.State, st.SuccessfulSwaps, st.FailedSwaps)
	}
	return nil
}

func (c *hotSwapBDDContext) theRuntimeRestarts() error {
	st, ok := c.runtime.Status("adapter", "cache")
	if !ok {
		return errNoStatus
	}
	c.before = st
	if err := c.runtime.Close(context.Background()); err != nil {
		return err
	}
	rt, err := New(WithSnapshotPath(c.snapshotPath))
	if err != nil {
		return err
	}
	c.runtime = rt
	return nil
}

func (c *hotSwapBDDContext) theRestoredStatusShouldEqual(target string) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	st, ok := c.runtime.Status(domain, key)
	if !ok {
		return errNoStatus
	}
	if !reflect.DeepEqual(st, c.before) {
		return fmt.Errorf("%w: restored %+v, before %+v", errStatusMismatch, st, c.before)
	}
	return nil
}

func (c *hotSwapBDDContext) nothingShouldBeInstalled(target string) error {
	domain, key, err := splitTarget(target)
	if err != nil {
		return err
	}
	if _, ok := c.runtime.Manager().Instance(domain, key); ok {
		return errInstalled
	}
	return nil
}

// TestHotSwapFeatures runs the BDD scenarios for resolution and swaps
func TestHotSwapFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			testCtx := &hotSwapBDDContext{}

			ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
				testCtx.reset()
				return ctx, nil
			})
			ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
				testCtx.reset()
				return ctx, nil
			})

			ctx.Step(`^a hot-swap runtime persisting to a snapshot file$`, func() error {
				return testCtx.aRuntimePersistingToASnapshotFile(t.TempDir())
			})
			ctx.Step(`^a healthy candidate "([^"]*)" for "([^"]*)" with priority (-?\d+) and stack level (-?\d+)$`, testCtx.aHealthyCandidate)
			ctx.Step(`^an unhealthy candidate "([^"]*)" for "([^"]*)" with priority (-?\d+) and stack level (-?\d+)$`, testCtx.anUnhealthyCandidate)
			ctx.Step(`^"([^"]*)" should resolve to "([^"]*)"$`, testCtx.shouldResolveTo)
			ctx.Step(`^explaining "([^"]*)" should select "([^"]*)"$`, testCtx.explainingShouldSelect)
			ctx.Step(`^I activate "([^"]*)"$`, testCtx.iActivate)
			ctx.Step(`^I swap "([^"]*)"$`, testCtx.iSwap)
			ctx.Step(`^I force a swap of "([^"]*)"$`, testCtx.iForceASwapOf)
			ctx.Step(`^the activation should succeed$`, testCtx.theActivationShouldSucceed)
			ctx.Step(`^the activation should fail with a health check error$`, testCtx.theActivationShouldFailWithAHealthCheckError)
			ctx.Step(`^the installed provider for "([^"]*)" should be "([^"]*)"$`, testCtx.theInstalledProviderShouldBe)
			ctx.Step(`^the status of "([^"]*)" should be "([^"]*)" with (\d+) successful and (\d+) failed swaps$`, testCtx.theStatusShouldBe)
			ctx.Step(`^the runtime restarts from the same snapshot$`, testCtx.theRuntimeRestarts)
			ctx.Step(`^the restored status of "([^"]*)" should equal the status before the restart$`, testCtx.theRestoredStatusShouldEqual)
			ctx.Step(`^nothing should be installed for "([^"]*)"$`, testCtx.nothingShouldBeInstalled)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/hot_swap.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
