package acquisition

import (
	"context"
	"log/slog"

	"github.com/ceti-tag/whaletag-daemon/internal/fpga"
	"github.com/ceti-tag/whaletag-daemon/internal/logging"
)

// FIFODrain is the subset of *fpga.FIFODrain the feeder needs, factored
// out as an interface so tests can substitute a fake FIFO without
// building real GPIO/SPI fakes.
type FIFODrain interface {
	Next(ctx context.Context) (fpga.Block, error)
}

// AudioFeeder alternately fills the two blocks of an AudioPingPong from a
// FIFODrain, satisfying suture.Service. Unlike Worker[T], it has no
// fixed sample period and no AdaptiveDecay gate: the FIFO's own
// data-ready edge paces it, and a failing read is fatal to the feeder
// rather than something to sample around, since audio has no "skip a
// sample and try again later" semantics the way a polled sensor does.
type AudioFeeder struct {
	drain  FIFODrain
	pp     *logging.AudioPingPong
	logger *slog.Logger
}

// NewAudioFeeder constructs a feeder driving pp from drain.
func NewAudioFeeder(drain FIFODrain, pp *logging.AudioPingPong, logger *slog.Logger) *AudioFeeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioFeeder{drain: drain, pp: pp, logger: logger}
}

// String names the feeder for suture's service listing and log lines.
func (f *AudioFeeder) String() string { return "audio-feeder" }

// Serve drains blocks from the FIFO and hands each one to the ping-pong
// buffer until ctx is cancelled.
func (f *AudioFeeder) Serve(ctx context.Context) error {
	idx := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := f.drain.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("audio FIFO drain failed", "error", err.Error())
			return err
		}

		f.pp.Fill(idx, block.Overflowed, func(buf []byte) {
			copy(buf, block.Data)
		})
		idx = 1 - idx
	}
}
