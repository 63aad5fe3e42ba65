// Package walletserver wires the embedded daemon, its liveness watchdog and the
// metrics endpoint into one runnable unit.
package walletserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"walletd/go-backend/internal/daemon"
	"walletd/go-backend/internal/daemon/embedded"
	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/internal/daemon/watchdog"
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/internal/platform/opmetrics"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg      daemonconfig.Config
	launcher ports.Launcher
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *opmetrics.Recorder

	httpServer *http.Server

	// Set once by Run; read by Daemon and the health handler.
	mu      sync.Mutex
	daemon  *embedded.Daemon
	monitor *watchdog.Monitor
}

// New prepares a server. metricsAddr may be empty to skip the HTTP endpoint.
func New(cfg daemonconfig.Config, launcher ports.Launcher, metricsAddr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s := &Server{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger,
		registry: registry,
		metrics:  opmetrics.New(registry),
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", s.handleHealth)
		s.httpServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Daemon returns the running daemon, or nil before Run has started it.
func (s *Server) Daemon() daemon.Daemon {
	d, _ := s.running()
	if d == nil {
		return nil
	}
	return d
}

func (s *Server) running() (*embedded.Daemon, *watchdog.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daemon, s.monitor
}

// Run starts the daemon and blocks until ctx ends or the daemon dies. The
// daemon is always stopped before Run returns.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	d, err := embedded.Start(ctx, s.cfg, s.launcher,
		embedded.WithLogger(s.logger),
		embedded.WithMetrics(s.metrics),
	)
	if err != nil {
		return err
	}
	monitor := watchdog.New(d, s.cfg.ProbeInterval, s.logger)
	s.mu.Lock()
	s.daemon, s.monitor = d, monitor
	s.mu.Unlock()
	monitor.Start(ctx)

	errCh := make(chan error, 1)
	if s.httpServer != nil {
		go func() {
			err := s.httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				errCh <- nil
				return
			}
			errCh <- err
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-monitor.Done():
		switch err := monitor.Err(); {
		case ctx.Err() != nil:
		case err != nil && !errors.Is(err, daemon.ErrStopped):
			runErr = err
		default:
			runErr = errors.New("daemon exited unexpectedly")
		}
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("metrics endpoint: %w", err)
		}
	}
	return errors.Join(runErr, s.shutdown(d, monitor))
}

func (s *Server) shutdown(d *embedded.Daemon, monitor *watchdog.Monitor) error {
	var errs []error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	monitor.Stop()
	if err := d.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, monitor := s.running()
	if monitor == nil {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	select {
	case <-monitor.Done():
		http.Error(w, "daemon stopped", http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
