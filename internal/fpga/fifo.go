package fpga

import (
	"context"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// DataReadyTimeout bounds how long FIFODrain waits for the FPGA to signal
// a block is ready before treating it as a transient stall, letting the
// caller re-check its own cancellation/stop flags rather than blocking
// forever on a wedged link.
const DataReadyTimeout = 200 * time.Millisecond

// Block is one fixed-size read from the audio FIFO, annotated with
// whether the FPGA reported an overflow since the previous block. Per the
// hardware design, an overflowed block is still delivered whole — never
// dropped or reordered — so downstream consumers can flag the gap in
// their own records instead of silently losing samples.
type Block struct {
	Data       []byte
	Overflowed bool
}

// FIFODrain bulk-reads the audio FIFO over SPI once per data-ready edge.
type FIFODrain struct {
	conn      spi.Conn
	dataReady gpio.PinIn
	overflow  gpio.PinIn
	blockSize int
}

func NewFIFODrain(conn spi.Conn, dataReady, overflow gpio.PinIn, blockSize int) *FIFODrain {
	return &FIFODrain{conn: conn, dataReady: dataReady, overflow: overflow, blockSize: blockSize}
}

// Next blocks until the FPGA asserts data-ready or ctx is done, then
// reads one block. It samples the overflow line both before and after
// the transfer so a flag raised mid-transfer is still observed.
func (d *FIFODrain) Next(ctx context.Context) (Block, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Block{}, err
		}
		if d.dataReady.WaitForEdge(DataReadyTimeout) {
			break
		}
	}

	overflowed := d.overflow != nil && d.overflow.Read() == gpio.High

	buf := make([]byte, d.blockSize)
	if err := d.conn.Tx(nil, buf); err != nil {
		return Block{}, wterr.New(wterr.DeviceFPGA, wterr.ErrFileRead)
	}

	if d.overflow != nil && d.overflow.Read() == gpio.High {
		overflowed = true
	}

	return Block{Data: buf, Overflowed: overflowed}, nil
}
