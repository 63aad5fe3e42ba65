package embedded

import (
	"time"

	"walletd/go-backend/internal/daemon"
	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/internal/platform/opmetrics"
)

// Command runs op against the live daemon control while holding the handle
// guard. op is never called once the daemon is stopped. Errors returned by op
// are reported as unexpected unless they already carry a daemon error kind;
// a panic in op is reported as unexpected and poisons the daemon.
func Command[T any](d *Daemon, operation string, op func(ports.Control) (T, error)) (res T, err error) {
	started := time.Now()
	defer func() { d.observeCommand(operation, started, err) }()

	guard, err := d.slot.acquire()
	if err != nil {
		return res, err
	}
	defer guard.release(&err)

	handle, ok := guard.peek()
	if !ok {
		return res, daemon.ErrStopped
	}
	res, err = op(handle.Control())
	if err != nil {
		return res, daemon.Unexpected(err)
	}
	return res, nil
}

func (d *Daemon) observeCommand(operation string, started time.Time, err error) {
	if err == nil {
		d.metrics.RecordCommand(operation, opmetrics.OutcomeOK, started)
		return
	}
	kind := daemon.KindOf(err)
	d.metrics.RecordCommand(operation, string(kind), started)
	if kind != daemon.KindStopped {
		d.logError(operation, err)
		return
	}
	if ok, suppressed := d.rejectLog.Allow(operation, time.Now()); ok {
		d.logWarn(operation, "command rejected: daemon stopped", "suppressed", suppressed)
	}
}
