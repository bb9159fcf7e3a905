//go:build linux

// Package instance guards against two daemon processes running against
// the same hardware at once: a single flock(2)-held PID file.
//
// Grounded on the teacher's internal/lock.FileLock (stale-lock
// detection, PID tracking), generalized from one lock per streamed
// device to the single process-wide lock this daemon needs — there is
// only ever one mission running, so the retry/backoff loop the teacher
// needed for concurrent device claims is unnecessary here: Acquire
// either gets the lock immediately or reports another instance is
// already running.
package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// Lock is a single exclusive PID-file lock for this process.
type Lock struct {
	mu   sync.Mutex
	path string
	file *os.File
	pid  int
}

// New prepares a Lock at path; the parent directory is created if
// needed. The lock isn't held until Acquire succeeds.
func New(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("instance: lock path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("instance: create lock directory: %w", err)
	}
	return &Lock{path: path, pid: os.Getpid()}, nil
}

// Acquire takes the exclusive lock, clearing a stale lock file (dead
// owner process) first if one is found. It returns an error immediately
// if another live process already holds the lock.
func (l *Lock) Acquire() error {
	if stale, _ := isStale(l.path); stale {
		_ = os.Remove(l.path)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("instance: open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return fmt.Errorf("instance: another instance is already running: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		file.Close()
		return fmt.Errorf("instance: truncate lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return fmt.Errorf("instance: seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%d\n", l.pid); err != nil {
		file.Close()
		return fmt.Errorf("instance: write pid: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("instance: sync lock file: %w", err)
	}

	l.mu.Lock()
	l.file = file
	l.mu.Unlock()
	return nil
}

// Release drops the lock and closes the file.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("instance: lock not held")
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("instance: unlock: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// isStale reports whether the lock file at path names a PID that's no
// longer running (or is unreadable/empty), in which case it's safe to
// remove and re-acquire.
func isStale(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return true, nil
	}

	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return true, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return true, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return true, nil
	}
	if err := process.Signal(syscall.Signal(0)); err == nil {
		return false, nil
	}
	return true, nil
}
