// Package supervisor owns the tag's process-wide lifecycle: the
// borrow-once Runtime handle that replaces the original firmware's
// globals (g_config, g_exit, g_stopAcquisition, g_stopLogging), and the
// ordered two-phase cooperative shutdown spec.md §4.7 describes —
// acquisition workers stop and idle before logging workers do, so no
// logger is left waiting on a ring no worker will ever publish to
// again.
//
// The supervision tree itself is github.com/thejerf/suture/v4, already
// part of the teacher's dependency stack; the teacher's own hand-rolled
// restart loop (startService/runServiceLoop in the version this package
// started from) is replaced by suture's, since acquisition and logging
// workers don't need indefinite-restart-with-backoff semantics — they
// run for exactly one mission and stop when told to.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/config"
	"github.com/thejerf/suture/v4"
)

// Service is anything the Runtime's supervision trees can run.
type Service = suture.Service

// Runtime is the single process-wide handle built once in main and
// passed by pointer to every worker/driver constructor, replacing the
// original's global stop flags with atomics guarded by one struct
// instead of file-scope statics.
type Runtime struct {
	Config *config.TagConfig
	Logger *slog.Logger

	stopAcquisition atomic.Bool
	stopLogging     atomic.Bool
	exit            atomic.Bool

	acquisition *suture.Supervisor
	logging     *suture.Supervisor
}

// New constructs a Runtime with empty acquisition and logging
// supervision trees.
func New(cfg *config.TagConfig, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		acquisition: suture.NewSimple("acquisition"),
		logging:     suture.NewSimple("logging"),
	}
}

// AddAcquisitionWorker registers a sensor worker. Must be called before
// Serve.
func (r *Runtime) AddAcquisitionWorker(svc Service) {
	r.acquisition.Add(svc)
}

// AddLoggingWorker registers a data logger. Must be called before
// Serve.
func (r *Runtime) AddLoggingWorker(svc Service) {
	r.logging.Add(svc)
}

// StopAcquisition reports whether acquisition workers have been told to
// idle.
func (r *Runtime) StopAcquisition() bool { return r.stopAcquisition.Load() }

// StopLogging reports whether logging workers have been told to idle.
func (r *Runtime) StopLogging() bool { return r.stopLogging.Load() }

// RequestExit marks the process for shutdown; Serve's caller observes
// this via the ctx it was given, not this flag directly — it exists so
// command-channel handlers (the "quit" verb) and signal handling can
// record the request before Serve's context is actually cancelled.
func (r *Runtime) RequestExit() { r.exit.Store(true) }

// ExitRequested reports whether RequestExit has been called.
func (r *Runtime) ExitRequested() bool { return r.exit.Load() }

// ShutdownTimeout bounds how long Serve waits for each supervision tree
// to drain before giving up and returning anyway.
const ShutdownTimeout = 10 * time.Second

// Serve runs both supervision trees until ctx is cancelled, then
// performs the ordered shutdown: stop acquisition workers and wait for
// them to exit, stop logging workers and wait, then call closeDrivers,
// then — if shouldCutPower reports true — call powerdown to issue the
// FPGA battery-cut CAM transaction. shouldCutPower is evaluated only
// after both supervision trees have drained, since the decision (mission
// in SHUTDOWN with a critical battery reading) depends on state the
// mission controller only finishes settling once acquisition has
// stopped publishing new samples.
func (r *Runtime) Serve(ctx context.Context, closeDrivers func() error, shouldCutPower func() bool, powerdown func() error) error {
	acqCtx, cancelAcq := context.WithCancel(ctx)
	logCtx, cancelLog := context.WithCancel(ctx)
	defer cancelAcq()
	defer cancelLog()

	acqErrCh := r.acquisition.ServeBackground(acqCtx)
	logErrCh := r.logging.ServeBackground(logCtx)

	<-ctx.Done()
	r.Logger.Info("supervisor: shutdown signal received")

	r.stopAcquisition.Store(true)
	cancelAcq()
	if err := waitFor(acqErrCh, ShutdownTimeout); err != nil {
		r.Logger.Warn("supervisor: acquisition tree did not stop cleanly", "error", err.Error())
	}

	r.stopLogging.Store(true)
	cancelLog()
	if err := waitFor(logErrCh, ShutdownTimeout); err != nil {
		r.Logger.Warn("supervisor: logging tree did not stop cleanly", "error", err.Error())
	}

	if closeDrivers != nil {
		if err := closeDrivers(); err != nil {
			r.Logger.Error("supervisor: error closing drivers", "error", err.Error())
		}
	}

	if shouldCutPower != nil && shouldCutPower() && powerdown != nil {
		r.Logger.Warn("supervisor: issuing FPGA battery power cut")
		if err := powerdown(); err != nil {
			return fmt.Errorf("supervisor: powerdown failed: %w", err)
		}
	}

	return ctx.Err()
}

func waitFor(errCh <-chan error, timeout time.Duration) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}
