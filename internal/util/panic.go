package util

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo wraps goroutine execution with panic recovery, required for a
// daemon meant to run unattended for the length of a mission: a panic
// in any one acquisition or logging worker must not take the whole
// process down with it.
func SafeGo(name string, logger *slog.Logger, fn func(), onPanic func(interface{}, []byte)) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Error("panic recovered", "worker", name, "panic", r, "stack", string(stack))
				if onPanic != nil {
					onPanic(r, stack)
				}
			}
		}()
		fn()
	}()
}

// SafeGoWithRecover is SafeGo for a goroutine that reports its outcome
// on errCh, which is closed on exit whether fn panicked, returned an
// error, or returned nil.
func SafeGoWithRecover(name string, logger *slog.Logger, fn func() error, errCh chan<- error, onPanic func(interface{}, []byte)) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Error("panic recovered", "worker", name, "panic", r, "stack", string(stack))
				if onPanic != nil {
					onPanic(r, stack)
				}
				if errCh != nil {
					errCh <- fmt.Errorf("panic in %s: %v", name, r)
					close(errCh)
				}
			}
		}()

		err := fn()
		if errCh != nil {
			if err != nil {
				errCh <- err
			}
			close(errCh)
		}
	}()
}

// RecoverToPanic runs fn and converts a panic into an error return
// instead of letting it propagate.
func RecoverToPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
