// Package ecg drives the single-channel delta-sigma ECG front-end: a
// ADS129x-family ADC read over I2C, gated by a DATA-READY GPIO edge, plus
// lead-off detection surfaced through two I/O-expander input bits.
//
// Grounded on original_source/TagV3.0_U575VGT/Core/Src/Sensor Src/ECG.c
// (command bytes, 24-bit big-endian sample framing, config-register write
// opcode 0b01000000|reg). The ADC's I2C address and the exact lead-off bit
// positions were not retained in the reference pack (ECG.h was filtered
// out); the lead-off bit assignment below follows the commented-out
// lead_state decoding in
// original_source/.../cetiHWTest/tests/ecg.c ("lead_state & 0b11": bit 0
// positive-lead-off, bit 1 negative-lead-off, both set when all leads are
// off the body), and the I2C address is likewise an assumption. Both are
// called out here as assumptions rather than retained constants.
package ecg

import (
	"context"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/device/iox"
	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// I2CAddr is the ADC's 7-bit I2C address. Assumed; see package doc.
const I2CAddr = 0x45

const (
	cmdReset      = 0x06
	cmdStart      = 0x08
	cmdReadData   = 0x12
	cmdWriteReg   = 0x40
	cmdReadReg    = 0x20
	defaultConfig = 0x00
)

// LSBVolts converts one raw ADC count to volts for the default gain/Vref
// configuration.
const LSBVolts = 2.42 / (1 << 23)

const (
	// LeadOffPositiveBit and LeadOffNegativeBit index into the I/O
	// expander's input register. Assumed; see package doc.
	LeadOffPositiveBit = 0
	LeadOffNegativeBit = 1
)

// DataReadyTimeout bounds how long Read waits for a DATA-READY edge before
// giving up (original firmware's ECG_ADC_DATA_TIMEOUT, value unavailable
// in the reference pack; chosen conservatively relative to the channel's
// expected sample period).
const DataReadyTimeout = 500 * time.Millisecond

// Frontend drives the ECG ADC and its associated lead-off expander bits.
type Frontend struct {
	dev       i2c.Dev
	dataReady gpio.PinIn
	expander  *iox.Expander
}

func New(bus i2c.Bus, dataReady gpio.PinIn, expander *iox.Expander) *Frontend {
	return &Frontend{
		dev:       i2c.Dev{Bus: bus, Addr: I2CAddr},
		dataReady: dataReady,
		expander:  expander,
	}
}

// Init resets the ADC, applies the default configuration register, and
// starts continuous conversion.
func (f *Frontend) Init() error {
	if err := f.dev.Tx([]byte{cmdReset}, nil); err != nil {
		return wterr.New(wterr.DeviceECGADC, wterr.ErrFileWrite)
	}
	if err := f.WriteConfig(defaultConfig); err != nil {
		return err
	}
	if err := f.dev.Tx([]byte{cmdStart}, nil); err != nil {
		return wterr.New(wterr.DeviceECGADC, wterr.ErrFileWrite)
	}
	return nil
}

// WriteConfig writes the ADC's single configuration register.
func (f *Frontend) WriteConfig(value byte) error {
	if err := f.dev.Tx([]byte{cmdWriteReg, value}, nil); err != nil {
		return wterr.New(wterr.DeviceECGADC, wterr.ErrFileWrite)
	}
	return nil
}

// ReadConfig reads the ADC's configuration register back.
func (f *Frontend) ReadConfig() (byte, error) {
	buf := make([]byte, 1)
	if err := f.dev.Tx([]byte{cmdReadReg}, buf); err != nil {
		return 0, wterr.New(wterr.DeviceECGADC, wterr.ErrFileRead)
	}
	return buf[0], nil
}

// Sample is one converted ECG reading.
type Sample struct {
	VoltageV float64
}

// Read waits for the DATA-READY edge (falling, active low) up to
// DataReadyTimeout, then retrieves the 24-bit big-endian conversion
// result. Satisfies internal/acquisition.Driver[Sample].
func (f *Frontend) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if f.dataReady != nil {
		if !f.dataReady.WaitForEdge(DataReadyTimeout) {
			return Sample{}, wterr.New(wterr.DeviceECGADC, wterr.ErrECGTimeout)
		}
	}

	buf := make([]byte, 3)
	if err := f.dev.Tx([]byte{cmdReadData}, buf); err != nil {
		return Sample{}, wterr.New(wterr.DeviceECGADC, wterr.ErrFileRead)
	}

	raw := int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])
	if raw&0x800000 != 0 {
		raw |= ^0xFFFFFF // sign-extend 24 bits to 32
	}
	return Sample{VoltageV: float64(raw) * LSBVolts}, nil
}

// LeadState reports which electrodes have lost skin contact.
type LeadState struct {
	PositiveOff bool
	NegativeOff bool
}

// AllLeadsOn reports whether both electrodes are making contact.
func (l LeadState) AllLeadsOn() bool { return !l.PositiveOff && !l.NegativeOff }

// ReadLeadState reads both lead-off bits from the shared I/O expander.
func (f *Frontend) ReadLeadState() (LeadState, error) {
	bits, err := f.expander.ReadInputs()
	if err != nil {
		return LeadState{}, err
	}
	return LeadState{
		PositiveOff: bits&(1<<LeadOffPositiveBit) != 0,
		NegativeOff: bits&(1<<LeadOffNegativeBit) != 0,
	}, nil
}
