package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxFramesPerFile bounds how many FLAC frames accumulate in one
// "audio_<unix-us>_<seq>.flac" file before the logger rotates to the
// next sequence number, the audio analogue of the teacher's
// size-triggered RotatingWriter (internal/stream/logrotate.go) adapted
// to a frame count, since FLAC's own STREAMINFO block claims a fixed
// block size that a single writer stream shouldn't need to revise.
const DefaultMaxFramesPerFile = 6000

// AudioLogger drains an AudioPingPong, packing each delivered block
// into a FLAC frame, rotating to a new sequence-numbered file once
// DefaultMaxFramesPerFile frames have been written.
type AudioLogger struct {
	dir            string
	missionStartUS int64
	pp             *AudioPingPong
	sampleRate     int
	channels       int
	bitsPerSample  int
	blockSize      int
	logger         *slog.Logger

	mu           sync.Mutex
	seq          int
	frameInFile  int
	frameNumber  uint64
	file         *os.File
	discard      bool
	done         chan struct{}
	stopOnce     sync.Once
}

// NewAudioLogger constructs a logger for a ping-pong pair whose blocks
// are blockSize bytes of interleaved PCM at sampleRate/channels/
// bitsPerSample.
func NewAudioLogger(dir string, missionStartUS int64, pp *AudioPingPong, sampleRate, channels, bitsPerSample, blockSize int, logger *slog.Logger) *AudioLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioLogger{
		dir: dir, missionStartUS: missionStartUS, pp: pp,
		sampleRate: sampleRate, channels: channels, bitsPerSample: bitsPerSample,
		blockSize: blockSize, logger: logger, done: make(chan struct{}),
	}
}

// Run drains ping-pong-ready blocks until Close is called.
func (a *AudioLogger) Run() error {
	samplesPerChannel := a.blockSize / (a.channels * ((a.bitsPerSample + 7) / 8))
	if err := a.rotate(samplesPerChannel); err != nil {
		return err
	}
	defer a.closeFile()

	for {
		idx, ok := a.pp.Wait(a.done)
		if !ok {
			return nil
		}
		a.pp.WithBlock(idx, func(data []byte, overflowed bool) {
			a.writeBlock(data, overflowed, samplesPerChannel)
		})
	}
}

func (a *AudioLogger) writeBlock(data []byte, overflowed bool, samplesPerChannel int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.discard {
		return
	}

	if overflowed {
		a.logger.Warn("audio block delivered with FIFO overflow flag set",
			"seq", a.seq, "frame", a.frameNumber)
	}

	channelsData, err := decodeInterleavedPCM(data, a.channels, a.bitsPerSample)
	if err != nil {
		a.switchToDiscard(fmt.Errorf("decode: %w", err))
		return
	}
	frame, err := encodeFrame(a.frameNumber, a.sampleRate, a.channels, a.bitsPerSample, samplesPerChannel, channelsData)
	if err != nil {
		a.switchToDiscard(fmt.Errorf("encode: %w", err))
		return
	}

	if _, err := a.file.Write(frame); err != nil {
		a.switchToDiscard(fmt.Errorf("write: %w", err))
		return
	}

	a.frameNumber++
	a.frameInFile++
	if a.frameInFile >= DefaultMaxFramesPerFile {
		a.closeFile()
		a.seq++
		if err := a.rotate(samplesPerChannel); err != nil {
			a.switchToDiscard(fmt.Errorf("rotate: %w", err))
		}
	}
}

func (a *AudioLogger) rotate(samplesPerChannel int) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("logging: create data dir: %w", err)
	}
	path := filepath.Join(a.dir, fmt.Sprintf("audio_%d_%d.flac", a.missionStartUS, a.seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", path, err)
	}
	if _, err := f.Write(flacStreamHeader(samplesPerChannel, a.sampleRate, a.channels, a.bitsPerSample)); err != nil {
		f.Close()
		return fmt.Errorf("logging: write stream header to %s: %w", path, err)
	}
	a.file = f
	a.frameInFile = 0
	return nil
}

func (a *AudioLogger) closeFile() {
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
}

func (a *AudioLogger) switchToDiscard(err error) {
	a.discard = true
	a.logger.Error("audio logger switching to discard mode after failure",
		"seq", a.seq, "error", err.Error())
}

// Close stops Run.
func (a *AudioLogger) Close() {
	a.stopOnce.Do(func() { close(a.done) })
}

// Serve runs Run until ctx is cancelled, satisfying suture.Service so the
// audio writer can sit in the logging supervisor tree next to the
// per-sensor CSVLoggers.
func (a *AudioLogger) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.Close()
	}()
	if err := a.Run(); err != nil {
		return err
	}
	return ctx.Err()
}

// String names the logger for suture's service listing and log lines.
func (a *AudioLogger) String() string { return "audio" }
