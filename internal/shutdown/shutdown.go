// Package shutdown provides a cooperative cancellation flag shared by
// long-running pipeline stages. Stages poll the flag at safe points
// (task dispatch, chunk boundaries) and stop starting new work once it
// is set; already-running external processes are left to finish.
package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Signal is a thread-safe boolean flag. The zero value is ready to use.
type Signal struct {
	requested atomic.Bool
}

// New creates a new, unset Signal.
func New() *Signal {
	return &Signal{}
}

// Set marks shutdown as requested.
func (s *Signal) Set() {
	s.requested.Store(true)
}

// IsSet reports whether shutdown has been requested.
func (s *Signal) IsSet() bool {
	return s.requested.Load()
}

// NotifyOnInterrupt sets the flag when SIGINT or SIGTERM is received.
// A second signal terminates the process immediately.
func (s *Signal) NotifyOnInterrupt(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-ch
		logger.Warn("shutdown requested, finishing in-flight work",
			slog.String("signal", sig.String()),
		)
		s.Set()

		sig = <-ch
		logger.Error("second signal received, exiting immediately",
			slog.String("signal", sig.String()),
		)
		os.Exit(1)
	}()
}
