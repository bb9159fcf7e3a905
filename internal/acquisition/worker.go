// Package acquisition runs one sensor's sample loop: read on a fixed
// period, publish into that sensor's Ring, and fold the outcome into its
// AdaptiveDecay so a wedged bus samples less often instead of spinning a
// goroutine against it.
//
// The loop shape is grounded on the restart loop in
// tomtom215-lyrebirdaudio-go's internal/stream.Manager.Run: a for/select
// over ctx.Done() wrapping one unit of work per iteration, with
// structured failure logging and a state machine visible to the
// supervisor tree. Acquisition workers don't restart a subprocess, so
// there's no backoff-triggered give-up; AdaptiveDecay plays that role by
// slowing the loop down instead of killing it.
package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/decay"
	"github.com/ceti-tag/whaletag-daemon/internal/sample"
)

// Driver reads one sample from a sensor. Implementations block for at
// most the duration they need to acquire a reading and must honor ctx
// cancellation.
type Driver[T any] interface {
	Read(ctx context.Context) (T, error)
}

// State mirrors the supervisor-visible lifecycle of a Worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker samples a Driver[T] on a fixed period and publishes each
// outcome to a Ring[T], gated by an AdaptiveDecay so a failing sensor is
// polled less often rather than busy-looping against a broken bus.
type Worker[T any] struct {
	name   string
	driver Driver[T]
	ring   *sample.Ring[T]
	decay  *decay.AdaptiveDecay
	period time.Duration
	logger *slog.Logger

	state atomic.Int32
}

// New constructs a Worker. logger may be nil, in which case slog.Default
// is used.
func New[T any](name string, driver Driver[T], ring *sample.Ring[T], d *decay.AdaptiveDecay, period time.Duration, logger *slog.Logger) *Worker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker[T]{name: name, driver: driver, ring: ring, decay: d, period: period, logger: logger}
}

// String names the worker for suture's service listing and log lines.
func (w *Worker[T]) String() string { return w.name }

// State reports the worker's current lifecycle state.
func (w *Worker[T]) State() State { return State(w.state.Load()) }

// Serve runs the sample loop until ctx is cancelled, satisfying
// suture.Service.
func (w *Worker[T]) Serve(ctx context.Context) error {
	w.state.Store(int32(StateRunning))
	defer w.state.Store(int32(StateStopped))

	timer := time.NewTimer(w.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if !w.decay.ShouldSample() {
			timer.Reset(w.period)
			continue
		}

		w.sampleOnce(ctx)
		timer.Reset(w.period)
	}
}

func (w *Worker[T]) sampleOnce(ctx context.Context) {
	ts := time.Now().UnixMicro()
	payload, err := w.driver.Read(ctx)
	w.decay.Update(err)

	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("sample read failed",
			"worker", w.name,
			"error", err.Error(),
			"consecutive_errors", w.decay.ConsecutiveErrors(),
			"multiplier", w.decay.Multiplier(),
		)
	}

	w.ring.Publish(sample.Sample[T]{TimestampUS: ts, Err: err, Payload: payload})
}
