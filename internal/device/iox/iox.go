// Package iox drives the tag's I/O expander: a single 8-bit output
// register gating the burnwire FET, its reset line, and a handful of
// board-level enable signals, plus a parallel input register for
// lead-off/status sensing.
//
// Grounded on original_source/.../hal/iox.h (register-bit convention only;
// the implementation bodies were not retained in the reference pack, so
// this is a from-scratch small I2C output/input-expander driver in the
// idiom of the other device packages here).
package iox

import (
	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/i2c"
)

const I2CAddr = 0x21

const (
	regOutput = 0x01
	regInput  = 0x00
)

// Pin identifies one output-register bit the expander controls.
type Pin uint8

// Known pin assignments (original burnwire.h's BW_nON/BW_RST bit numbers).
const (
	PinBurnwireOn    Pin = 0x10
	PinBurnwireReset Pin = 0x20
)

// Expander is a minimal 8-bit I2C I/O expander driver: a cached output
// shadow register (so SetPin/ClearPin can read-modify-write without an
// extra bus transaction) and a pass-through input read.
type Expander struct {
	dev    i2c.Dev
	output byte
}

func New(bus i2c.Bus) *Expander {
	return &Expander{dev: i2c.Dev{Bus: bus, Addr: I2CAddr}}
}

// SetPin asserts (drives high) the given output bit.
func (e *Expander) SetPin(p Pin) error {
	return e.writeOutput(e.output | byte(p))
}

// ClearPin deasserts (drives low) the given output bit.
func (e *Expander) ClearPin(p Pin) error {
	return e.writeOutput(e.output &^ byte(p))
}

func (e *Expander) writeOutput(value byte) error {
	if err := e.dev.Tx([]byte{regOutput, value}, nil); err != nil {
		return wterr.New(wterr.DeviceIOX, wterr.ErrFileWrite)
	}
	e.output = value
	return nil
}

// ReadInputs reads the 8-bit input register (lead-off detect and similar
// status lines).
func (e *Expander) ReadInputs() (byte, error) {
	buf := make([]byte, 1)
	if err := e.dev.Tx([]byte{regInput}, buf); err != nil {
		return 0, wterr.New(wterr.DeviceIOX, wterr.ErrFileRead)
	}
	return buf[0], nil
}
