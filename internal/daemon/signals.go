package daemon

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext returns a context cancelled on SIGTERM or SIGINT. SIGHUP
// is ignored so a closing terminal does not kill the daemon.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	signal.Ignore(syscall.SIGHUP)
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}
