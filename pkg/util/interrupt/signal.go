// Package interrupt cancels contexts on process termination signals.
package interrupt

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// from https://github.com/kubernetes/kubernetes/blob/c285e781331a3785a7f436042c65c5641ce8a9e9/pkg/util/interrupt/interrupt.go#L28
var terminationSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// SignalError is the cancel cause of a TerminationContext that was
// canceled by a signal.
type SignalError struct{ Signal os.Signal }

func (e *SignalError) Error() string { return "received signal " + e.Signal.String() }

// TerminationContext returns a context that is canceled when a termination
// signal is received. context.Cause of the returned context is a
// *SignalError in that case.
func TerminationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, terminationSignals...)
	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			cancel(&SignalError{Signal: s})
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// Signal returns the signal that canceled ctx, if any.
func Signal(ctx context.Context) (os.Signal, bool) {
	var se *SignalError
	if errors.As(context.Cause(ctx), &se) {
		return se.Signal, true
	}
	return nil, false
}
