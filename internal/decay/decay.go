// Package decay implements the adaptive sampling back-off policy shared by
// every acquisition worker: a misbehaving sensor is sampled less often
// instead of spinning a worker thread against a broken bus.
package decay

import "sync"

// AdaptiveDecay quiets a failing sensor without blocking its healthy
// siblings. On a run of consecutive errors longer than Grace, the sample
// interval doubles (unbounded); a single OK read resets it to 1.
//
// Grounded on the original firmware's AcqDecay (acq/decay.c): the shape is
// kept 1:1, the mutex-guarded, method-receiver-safe style follows the
// teacher's Backoff type.
type AdaptiveDecay struct {
	mu sync.Mutex

	grace      uint32
	skipCount  uint32
	multiplier uint32
	errs       uint32
}

// New returns an AdaptiveDecay that tolerates `grace` consecutive errors
// before it starts skipping sample intervals.
func New(grace uint32) *AdaptiveDecay {
	return &AdaptiveDecay{grace: grace, multiplier: 1}
}

// ShouldSample reports whether the worker should sample this interval. It
// always increments an internal skip counter and resets it to zero once the
// counter reaches the current multiplier, returning true on that interval.
func (d *AdaptiveDecay) ShouldSample() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.skipCount++
	if d.skipCount < d.multiplier {
		return false
	}
	d.skipCount = 0
	return true
}

// Update folds the outcome of the most recent read into the policy: err ==
// nil resets the back-off entirely; a non-nil err extends the consecutive
// error run and, once it exceeds Grace, doubles the multiplier.
func (d *AdaptiveDecay) Update(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		d.multiplier = 1
		d.errs = 0
		return
	}

	d.errs++
	if d.errs > d.grace {
		d.multiplier <<= 1
	}
}

// Multiplier returns the current skip multiplier, for diagnostics/tests.
func (d *AdaptiveDecay) Multiplier() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.multiplier
}

// ConsecutiveErrors returns the current consecutive-error count.
func (d *AdaptiveDecay) ConsecutiveErrors() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errs
}
