package proxy

import (
	"context"
	"log/slog"

	"github.com/chiwei-platform/phost/internal/metrics"
	"github.com/chiwei-platform/phost/internal/port"
	"golang.org/x/sys/unix"
)

var _ port.ProxyNotifier = (*Notifier)(nil)

// Notifier asks the proxy to reload its routes with SIGUSR1. Delivery is
// at most once and never fails the caller.
type Notifier struct {
	sidecar *Sidecar
}

// NewNotifier accepts a nil sidecar; notifications are then skipped with a warning.
func NewNotifier(sidecar *Sidecar) *Notifier {
	return &Notifier{sidecar: sidecar}
}

func (n *Notifier) Notify(_ context.Context) {
	if n.sidecar == nil {
		metrics.ProxyNotifications.WithLabelValues("skipped").Inc()
		slog.Warn("proxy reload skipped: no proxy process")
		return
	}
	if err := n.sidecar.Signal(unix.SIGUSR1); err != nil {
		metrics.ProxyNotifications.WithLabelValues(metrics.OutcomeFailure).Inc()
		slog.Error("proxy reload signal failed", "pid", n.sidecar.Pid(), "error", err)
		return
	}
	metrics.ProxyNotifications.WithLabelValues(metrics.OutcomeSuccess).Inc()
	slog.Debug("proxy reload signalled", "pid", n.sidecar.Pid())
}
