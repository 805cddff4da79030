package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap"
	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/health"
	"github.com/GoCodeAlone/hotswap/httpstatus"
	"github.com/GoCodeAlone/hotswap/logging"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a hot-swap runtime with HTTP diagnostics",
		Long: `Load the configuration and its manifests, activate the configured
targets and serve read-only diagnostics until interrupted.

While running, edits to the configuration file update pinned providers and
the factory allowlist; the next activation of a target picks them up.

Endpoints:
  GET /statuses
  GET /statuses/{domain}/{key}
  GET /domains
  GET /candidates/{domain}
  GET /candidates/{domain}/shadowed
  GET /candidates/{domain}/{key}/explain?provider=
  GET /health (when health monitoring is enabled)`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "Runtime configuration file")
	cmd.Flags().String("env-prefix", config.DefaultEnvPrefix, "Prefix of environment overrides")
	cmd.Flags().String("addr", "", "Listen address, overrides http.addr")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	envPrefix, _ := cmd.Flags().GetString("env-prefix")
	addr, _ := cmd.Flags().GetString("addr")

	cfg, err := config.Load(cfgPath, envPrefix)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	logger, err := commandLogger(cmd, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfgPath, envPrefix, cfg, logger)
	if err != nil {
		return err
	}
	return srv.run(ctx)
}

// server owns everything serve starts.
type server struct {
	runtime *hotswap.Runtime
	monitor *health.Monitor
	watcher *config.Watcher
	http    *http.Server
	logger  logging.Logger
}

func newServer(ctx context.Context, cfgPath, envPrefix string, cfg *config.Config, logger logging.Logger) (*server, error) {
	rt, err := hotswap.New(hotswap.WithConfig(cfg), hotswap.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := provideDemo(rt); err != nil {
		return nil, err
	}
	if err := rt.Events().RegisterObserver(hotswap.NewFunctionalObserver("hotswapctl-log", func(_ context.Context, event cloudevents.Event) error {
		logger.Debug("Runtime event", "type", event.Type(), "subject", event.Subject(), "id", event.ID())
		return nil
	})); err != nil {
		return nil, err
	}

	if err := rt.LoadManifests(); err != nil {
		return nil, err
	}
	if err := rt.ActivateConfigured(ctx); err != nil {
		logger.Warn("Some targets failed to activate", "error", err)
	}

	s := &server{runtime: rt, logger: logger}

	var handlerOpts []httpstatus.Option
	handlerOpts = append(handlerOpts, httpstatus.WithLogger(logger))
	if cfg.Health.Enabled {
		monitor, err := health.NewMonitor(rt.Manager(), cfg.Health.Monitor(), logger)
		if err != nil {
			return nil, err
		}
		monitor.OnStatusChange(func(_ context.Context, previous, current *health.AggregatedStatus) error {
			from := health.StatusUnknown
			if previous != nil {
				from = previous.OverallStatus
			}
			logger.Info("Overall health changed", "from", from, "to", current.OverallStatus)
			return nil
		})
		s.monitor = monitor
		handlerOpts = append(handlerOpts, httpstatus.WithHealth(monitor))
	}

	handler, err := httpstatus.NewHandler(rt.Manager(), rt.Resolver(), handlerOpts...)
	if err != nil {
		return nil, err
	}
	s.http = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.watcher = config.NewWatcher(cfgPath, envPrefix, func(next *config.Config) {
		if err := rt.ApplyConfig(next); err != nil {
			logger.Error("Failed to apply reloaded configuration", "error", err)
		}
	}, logger)

	return s, nil
}

// run starts background work and the listener, and unwinds everything
// once ctx is done.
func (s *server) run(ctx context.Context) error {
	if s.monitor != nil {
		if err := s.monitor.Start(ctx); err != nil {
			return err
		}
		if _, err := s.monitor.CheckNow(ctx); err != nil {
			s.logger.Warn("Initial health check failed", "error", err)
		}
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn("Configuration hot reload disabled", "error", err)
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen %s: %w", s.http.Addr, err), s.shutdown())
	}
	s.logger.Info("Serving diagnostics", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down")
	case serveErr = <-errCh:
	}
	return errors.Join(serveErr, s.shutdown())
}

func (s *server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.monitor != nil && s.monitor.IsMonitoring() {
		if err := s.monitor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.watcher.Stop(); err != nil {
		s.logger.Debug("Config watcher stop", "error", err)
	}
	if err := s.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
