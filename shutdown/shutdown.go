package shutdown

import (
	"context"
	"os/signal"
)

// Context returns a copy of parent that is canceled on the first
// termination signal. After that the default signal behavior is restored,
// so a second Ctrl+C kills the process.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, signals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
