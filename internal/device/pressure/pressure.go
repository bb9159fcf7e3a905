// Package pressure drives the Keller 4LD depth transducer over I²C.
//
// Grounded on original_source/.../device/keller4ld.c: a single 0xAC
// measurement-request byte, an 8ms settle wait, then a 5-byte status+data
// read.
package pressure

import (
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/i2c"
)

const (
	// I2CAddr is the Keller 4LD's fixed 7-bit I2C address.
	I2CAddr = 0x40

	requestMeasurement = 0xAC
	requestSettleTime  = 8 * time.Millisecond
)

// Sensor reads the Keller 4LD over an i2c.Dev, converting raw counts to
// bar/°C using a caller-supplied full-scale range (PRESSURE_MIN..PRESSURE_MAX
// in the original, configurable per transducer part number).
type Sensor struct {
	dev i2c.Dev

	MinBar float64
	MaxBar float64

	sleep func(time.Duration)
}

// New constructs a Sensor bound to bus at the Keller 4LD's fixed address.
// minBar/maxBar are the transducer's full-scale range (0..200 bar for the
// part CETI ships).
func New(bus i2c.Bus, minBar, maxBar float64) *Sensor {
	return &Sensor{
		dev:    i2c.Dev{Bus: bus, Addr: I2CAddr},
		MinBar: minBar,
		MaxBar: maxBar,
		sleep:  time.Sleep,
	}
}

// Reading is one depth-transducer measurement.
type Reading struct {
	PressureBar float64
	TempC       float64
}

// status byte bit layout (original keller4ld.c):
//
//	bits 7:6 must read 01 (fixed framing bits); bit 5 = busy; bit 2 = error.
const (
	statusMask      = 0b11000100
	statusWant      = 0b01000000
	statusBusyBit   = 0b00100000
)

// Read issues a measurement request and returns the converted reading.
// Mirrors pressure_get_measurement/pressure_get_measurement_raw exactly:
// request, wait, read, validate status, convert.
func (s *Sensor) Read() (Reading, error) {
	if err := s.dev.Tx([]byte{requestMeasurement}, nil); err != nil {
		return Reading{}, wterr.New(wterr.DevicePressure, wterr.ErrFileWrite)
	}

	s.sleep(requestSettleTime)

	raw := make([]byte, 5)
	if err := s.dev.Tx(nil, raw); err != nil {
		return Reading{}, wterr.New(wterr.DevicePressure, wterr.ErrFileRead)
	}

	status := raw[0]
	if status&statusMask != statusWant {
		return Reading{}, wterr.New(wterr.DevicePressure, wterr.ErrPressureInvalid)
	}
	if status&statusBusyBit != 0 {
		return Reading{}, wterr.New(wterr.DevicePressure, wterr.ErrPressureBusy)
	}

	pressureRaw := int16(raw[1])<<8 | int16(raw[2])
	tempRaw := int16(raw[3])<<8 | int16(raw[4])

	return Reading{
		PressureBar: s.rawToPressureBar(pressureRaw),
		TempC:       rawToTempC(tempRaw),
	}, nil
}

// rawToPressureBar maps the sensor's 16-bit count range (10%..90% of full
// scale, the Keller 4LD's standard I2C output convention) onto
// [MinBar, MaxBar].
func (s *Sensor) rawToPressureBar(raw int16) float64 {
	const (
		countsAtMin = 1638  // 10% of 16384 counts
		countsAtMax = 14746 // 90% of 16384 counts
	)
	span := s.MaxBar - s.MinBar
	frac := (float64(raw) - countsAtMin) / (countsAtMax - countsAtMin)
	return s.MinBar + frac*span
}

// rawToTempC applies the Keller 4LD's fixed-point temperature conversion.
func rawToTempC(raw int16) float64 {
	return (float64(raw>>4))*0.05 - 50
}
