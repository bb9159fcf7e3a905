// Package light drives the LiteOn LTR-329ALS-01 ambient-light sensor
// (visible + infrared channel pair) over I²C.
//
// Grounded on original_source/.../device/ltr329als.c.
package light

import (
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/i2c"
)

const I2CAddr = 0x29

const (
	regControl    = 0x80
	regMeasRate   = 0x85
	regPartID     = 0x86
	regManufacID  = 0x87
	regDataCh1    = 0x88
	regDataCh0    = 0x8A
	regStatus     = 0x8C
	controlGain1  = 0b000 << 2
	controlActive = 0b1 << 0
	statusNewData = 1 << 2
	wakeupTime    = 10 * time.Millisecond
)

const (
	// measRate100ms500ms: integration time 100ms (bits 5:3 = 000),
	// measurement repeat rate 500ms (bits 2:0 = 011).
	measRate100ms500ms = 0b000<<3 | 0b011
	// statusInvalid is ALS_STATUS bit 7, set when the data is invalid.
	statusInvalid = 1 << 7
)

type Sensor struct {
	dev   i2c.Dev
	sleep func(time.Duration)
}

func New(bus i2c.Bus) *Sensor {
	return &Sensor{dev: i2c.Dev{Bus: bus, Addr: I2CAddr}, sleep: time.Sleep}
}

// Wake takes the sensor from standby into active mode, waits the
// required settle time, then programs MEAS_RATE for a 100ms integration
// time and a 500ms measurement repeat rate.
func (s *Sensor) Wake() error {
	if err := s.writeReg(regControl, controlGain1|controlActive); err != nil {
		return wterr.New(wterr.DeviceLight, wterr.ErrFileWrite)
	}
	s.sleep(wakeupTime)
	if err := s.writeReg(regMeasRate, measRate100ms500ms); err != nil {
		return wterr.New(wterr.DeviceLight, wterr.ErrFileWrite)
	}
	return nil
}

// Reading is one CH1 (visible, really IR-compensated)/CH0 (visible+IR) pair.
type Reading struct {
	Visible  uint16
	Infrared uint16
}

// Read checks the STATUS register's data-invalid and new-data bits, then
// reads both 16-bit data channels. A stale/invalid status is reported as
// ErrLightInvalid rather than returning a possibly-repeated sample.
func (s *Sensor) Read() (Reading, error) {
	status, err := s.readReg(regStatus)
	if err != nil {
		return Reading{}, wterr.New(wterr.DeviceLight, wterr.ErrFileRead)
	}
	if status&statusInvalid != 0 || status&statusNewData == 0 {
		return Reading{}, wterr.New(wterr.DeviceLight, wterr.ErrLightInvalid)
	}

	ch1, err := s.readReg16(regDataCh1)
	if err != nil {
		return Reading{}, wterr.New(wterr.DeviceLight, wterr.ErrFileRead)
	}
	ch0, err := s.readReg16(regDataCh0)
	if err != nil {
		return Reading{}, wterr.New(wterr.DeviceLight, wterr.ErrFileRead)
	}

	return Reading{Visible: ch1, Infrared: ch0}, nil
}

// ManufacturerID reads the fixed manufacturer-id register (0x05 for LiteOn).
func (s *Sensor) ManufacturerID() (byte, error) {
	return s.readReg(regManufacID)
}

// PartID reads and splits the part/revision nibbles.
func (s *Sensor) PartID() (partID, revisionID byte, err error) {
	raw, err := s.readReg(regPartID)
	if err != nil {
		return 0, 0, err
	}
	return (raw >> 4) & 0x0F, raw & 0x0F, nil
}

func (s *Sensor) writeReg(reg, value byte) error {
	return s.dev.Tx([]byte{reg, value}, nil)
}

func (s *Sensor) readReg(reg byte) (byte, error) {
	buf := make([]byte, 1)
	if err := s.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (s *Sensor) readReg16(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}
