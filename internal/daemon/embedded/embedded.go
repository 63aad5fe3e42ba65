package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"walletd/go-backend/internal/daemon"
	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/internal/platform/opmetrics"
	"walletd/go-backend/internal/platform/privacylog"
	"walletd/go-backend/internal/platform/ratelimiter"
)

const defaultRejectLogInterval = 30 * time.Second

// Daemon runs a wallet daemon in-process. It owns the only reference to the
// session and serializes every command against it.
//
// Lifecycle: a Daemon is started at most once. After Stop, or after IsAlive
// finds the session dead, it stays stopped and every command returns
// daemon.ErrStopped.
type Daemon struct {
	cfg      daemonconfig.Config
	launcher ports.Launcher
	slot     handleSlot
	started  atomic.Bool

	logger    *slog.Logger
	metrics   *opmetrics.Recorder
	rejectLog *ratelimiter.KeyedLimiter
}

var _ daemon.Daemon = (*Daemon)(nil)

type Option func(*Daemon)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(metrics *opmetrics.Recorder) Option {
	return func(d *Daemon) {
		d.metrics = metrics
	}
}

// WithRejectLogInterval limits "daemon stopped" warnings to one per interval
// and operation. Zero or less logs every rejection.
func WithRejectLogInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		d.rejectLog = ratelimiter.New(interval, 1, 0)
	}
}

// New returns a daemon that has not been started yet. Commands issued before a
// successful Start return daemon.ErrStopped.
func New(cfg daemonconfig.Config, launcher ports.Launcher, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:       cfg,
		launcher:  launcher,
		logger:    privacylog.NewJSONLogger(os.Stdout, slog.LevelInfo),
		rejectLog: ratelimiter.New(defaultRejectLogInterval, 1, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.slot.onPanic = d.recordPanic
	return d
}

// Start creates and starts a daemon. On failure no daemon is returned.
func Start(ctx context.Context, cfg daemonconfig.Config, launcher ports.Launcher, opts ...Option) (*Daemon, error) {
	d := New(cfg, launcher, opts...)
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Start launches the session. Commands issued while the launch is in progress
// wait for it.
func (d *Daemon) Start(ctx context.Context) (err error) {
	if !d.started.CompareAndSwap(false, true) {
		return daemon.StartFailure(daemon.ErrAlreadyStarted)
	}
	if d.launcher == nil {
		return d.startFailed(errors.New("daemon launcher is not configured"))
	}

	guard, err := d.slot.acquire()
	if err != nil {
		return err
	}
	defer guard.release(&err)

	handle, err := d.launch(ctx)
	if err != nil {
		return d.startFailed(err)
	}
	if handle == nil {
		return d.startFailed(errors.New("launcher returned no session"))
	}
	guard.put(handle)
	d.metrics.RecordLifecycle(opmetrics.EventStarted)
	d.logInfo("start", "daemon started", "network", d.cfg.Network, "backend", d.cfg.Backend)
	return nil
}

// launch runs the launcher, reporting a panic as a launch error so that a
// broken launcher fails the start instead of poisoning the daemon.
func (d *Daemon) launch(ctx context.Context) (handle ports.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("launcher panic: %v", r)
		}
	}()
	return d.launcher.Start(ctx, d.cfg)
}

func (d *Daemon) startFailed(err error) error {
	d.metrics.RecordLifecycle(opmetrics.EventStartFailed)
	d.logError("start", err)
	return daemon.StartFailure(err)
}

func (d *Daemon) IsExternal() bool {
	return false
}

// Config returns a copy of the configuration the daemon was started with.
func (d *Daemon) Config() (daemonconfig.Config, bool) {
	return d.cfg, true
}

// IsAlive probes the session. When the probe reports the session dead, the
// session is shut down to collect its error and the daemon becomes stopped,
// whatever the shutdown returns. A nil result therefore means that no error
// occurred, not that the daemon is still running.
func (d *Daemon) IsAlive() (err error) {
	guard, err := d.slot.acquire()
	if err != nil {
		return err
	}
	defer guard.release(&err)

	handle, ok := guard.peek()
	if !ok {
		return daemon.ErrStopped
	}
	if handle.IsAlive() {
		return nil
	}

	guard.take()
	d.metrics.RecordLifecycle(opmetrics.EventDied)
	d.logWarn("is_alive", "daemon poller is not alive, reclaiming session")
	if stopErr := handle.Stop(); stopErr != nil {
		err = daemon.Unexpected(stopErr)
		d.logError("is_alive", err)
		return err
	}
	return nil
}

// Stop shuts the session down. It is idempotent. A poisoned daemon still
// releases its session; the call that releases it reports the poison, later
// calls return nil.
func (d *Daemon) Stop() (err error) {
	guard, poison := d.slot.acquireIgnoringPoison()
	defer guard.release(&err)

	handle, ok := guard.take()
	if !ok {
		return nil
	}
	d.metrics.RecordLifecycle(opmetrics.EventStopped)
	if stopErr := handle.Stop(); stopErr != nil {
		err = daemon.Unexpected(stopErr)
		d.logError("stop", err)
		return err
	}
	d.logInfo("stop", "daemon stopped")
	return poison
}

func (d *Daemon) recordPanic(recovered any) {
	d.metrics.RecordLifecycle(opmetrics.EventPanicked)
	d.logger.Error("daemon panic",
		"component", componentName,
		"panic", fmt.Sprint(recovered),
	)
}

// String never exposes the session.
func (d *Daemon) String() string {
	return fmt.Sprintf("EmbeddedDaemon{network=%s backend=%s}", d.cfg.Network, d.cfg.Backend)
}

func (d *Daemon) GoString() string {
	return d.String()
}
