// Package watchdog polls a daemon's liveness probe so that a session which
// dies on its own is reclaimed without waiting for the next command.
package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"walletd/go-backend/internal/daemon"
)

const DefaultInterval = 5 * time.Second

// Prober is the part of daemon.Daemon the monitor needs.
type Prober interface {
	IsAlive() error
}

// Monitor probes on a fixed interval until the probe reports an error or the
// monitor is stopped. The terminal probe error is kept for Err.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	err    error
}

func New(prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the probe loop. It is a no-op when already running or done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		if m.probe() {
			return
		}
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if m.probe() {
					return
				}
			}
		}
	}()
}

// probe reports whether the loop must exit.
func (m *Monitor) probe() bool {
	err := m.prober.IsAlive()
	if err == nil {
		return false
	}
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	if errors.Is(err, daemon.ErrStopped) {
		m.logger.Warn("daemon no longer running", "component", "watchdog")
	} else {
		m.logger.Error("daemon liveness probe failed", "component", "watchdog", "kind", string(daemon.KindOf(err)), "error", err.Error())
	}
	return true
}

// Stop ends the probe loop and waits for it.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

// Done is closed when the loop exits for any reason.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err returns the probe error that ended the loop, or nil if it was stopped.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
