package embedded

import (
	"strings"

	"walletd/go-backend/internal/daemon"
)

const componentName = "embedded_daemon"

func (d *Daemon) logInfo(operation, message string, attrs ...any) {
	base := []any{
		"component", componentName,
		"operation", strings.TrimSpace(operation),
	}
	d.logger.Info(message, append(base, attrs...)...)
}

func (d *Daemon) logWarn(operation, message string, attrs ...any) {
	base := []any{
		"component", componentName,
		"operation", strings.TrimSpace(operation),
	}
	d.logger.Warn(message, append(base, attrs...)...)
}

func (d *Daemon) logError(operation string, err error) {
	if err == nil {
		return
	}
	d.logger.Error("daemon error",
		"component", componentName,
		"operation", strings.TrimSpace(operation),
		"kind", string(daemon.KindOf(err)),
		"error", err.Error(),
	)
}
