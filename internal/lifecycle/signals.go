// Package lifecycle runs a long-lived process body until it returns or the
// process is asked to stop.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Process is the body and cleanup of a long-running application.
type Process struct {
	Name            string
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	// Run must return once its context is canceled.
	Run func(ctx context.Context) error
	// Shutdown releases resources after Run returned or was abandoned.
	Shutdown func(ctx context.Context)
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Execute runs p.Run. The first signal cancels it and starts the grace
// period; a second signal or the end of the grace period abandons it.
// Cancellation and timeouts are not reported as errors.
func Execute(ctx context.Context, p Process) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sigs := p.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	logger.Info("starting " + p.Name)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- p.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", p.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(p.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", p.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	if p.Shutdown != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), p.ShutdownTimeout)
		defer cancelShutdown()
		p.Shutdown(shutdownCtx)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	logger.Info(p.Name + " stopped")
	return nil
}
