// Package logging drains each sensor's sample Ring to durable storage:
// one rotating CSV file per sensor per mission, plus the audio FIFO's
// raw-PCM blocks packed into a FLAC container.
//
// Rotation is mission-triggered rather than size-triggered: a new
// CSVLogger is opened once per mission start and closed at mission end,
// unlike the teacher's RotatingWriter (internal/stream/logrotate.go),
// which rotates a single long-lived file by size. The on-write-failure
// behavior is adapted from the same file: where the teacher logs the
// rotation error and keeps writing anyway, a CSVLogger facing a
// persistent write failure (disk full) switches to discarding rows
// instead, so a stuck acquisition worker downstream never backs up
// waiting on the ring.
package logging

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ceti-tag/whaletag-daemon/internal/sample"
)

// RowFunc renders one sample's payload as CSV field values, not
// including the leading timestamp/error columns that CSVLogger always
// writes.
type RowFunc[T any] func(T) []string

// CSVLogger drains a *sample.Ring[T] into "data/<name>_<unix-us>.csv",
// one row per published sample, until Close is called.
type CSVLogger[T any] struct {
	name   string
	ring   *sample.Ring[T]
	toRow  RowFunc[T]
	logger *slog.Logger

	mu       sync.Mutex
	file     *os.File
	w        *csv.Writer
	discard  bool
	path     string
	done     chan struct{}
	stopOnce sync.Once
}

// Open creates "<dir>/<name>_<missionStartUS>.csv", writes the header
// row (timestamp_us, error, then columns...), and returns a logger ready
// to drain ring once Run (which blocks its caller) or Serve is called.
func Open[T any](dir, name string, missionStartUS int64, ring *sample.Ring[T], columns []string, toRow RowFunc[T], logger *slog.Logger) (*CSVLogger[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create data dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%d.csv", name, missionStartUS))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	header := append([]string{"timestamp_us", "error"}, columns...)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("logging: write header for %s: %w", path, err)
	}
	w.Flush()

	return &CSVLogger[T]{
		name: name, ring: ring, toRow: toRow, logger: logger,
		file: f, w: w, path: path, done: make(chan struct{}),
	}, nil
}

// Run drains the ring until stopped, blocking the calling goroutine. It
// returns once Close is called.
func (l *CSVLogger[T]) Run() {
	for {
		s, ok := l.ring.Wait(l.done)
		if !ok {
			return
		}
		l.writeRow(s)
	}
}

func (l *CSVLogger[T]) writeRow(s sample.Sample[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.discard {
		return
	}

	errField := ""
	if s.Err != nil {
		errField = s.Err.Error()
	}
	row := append([]string{fmt.Sprint(s.TimestampUS), errField}, l.toRow(s.Payload)...)

	if err := l.w.Write(row); err != nil {
		l.switchToDiscard(err)
		return
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.switchToDiscard(err)
	}
}

// Serve runs Run until ctx is cancelled, satisfying suture.Service so a
// CSVLogger can sit in the logging supervisor tree alongside the audio
// writer.
func (l *CSVLogger[T]) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	l.Run()
	return ctx.Err()
}

// String names the logger for suture's service listing and log lines.
func (l *CSVLogger[T]) String() string { return l.name }

func (l *CSVLogger[T]) switchToDiscard(err error) {
	l.discard = true
	l.logger.Error("csv logger switching to discard mode after write failure",
		"sensor", l.name, "path", l.path, "error", err.Error())
}

// Close stops Run and closes the underlying file.
func (l *CSVLogger[T]) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
