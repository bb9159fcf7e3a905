package light

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	regs  map[byte]byte
	wide  map[byte]uint16
}

func (f *fakeBus) String() string                 { return "fakeBus" }
func (f *fakeBus) Halt() error                     { return nil }
func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 2 {
		f.regs[w[0]] = w[1]
		return nil
	}
	reg := w[0]
	if len(r) == 1 {
		r[0] = f.regs[reg]
		return nil
	}
	v := f.wide[reg]
	r[0] = byte(v)
	r[1] = byte(v >> 8)
	return nil
}

func newTestSensor() (*Sensor, *fakeBus) {
	bus := &fakeBus{regs: map[byte]byte{}, wide: map[byte]uint16{}}
	s := New(bus)
	s.sleep = func(time.Duration) {}
	return s, bus
}

func TestWakeSetsActiveMode(t *testing.T) {
	s, bus := newTestSensor()
	require.NoError(t, s.Wake())
	require.Equal(t, byte(controlGain1|controlActive), bus.regs[regControl])
}

func TestReadRejectsStaleStatus(t *testing.T) {
	s, bus := newTestSensor()
	bus.regs[regStatus] = 0x00
	_, err := s.Read()
	require.Error(t, err)
}

func TestReadReturnsBothChannels(t *testing.T) {
	s, bus := newTestSensor()
	bus.regs[regStatus] = statusNewData
	bus.wide[regDataCh1] = 1234
	bus.wide[regDataCh0] = 5678

	reading, err := s.Read()
	require.NoError(t, err)
	require.EqualValues(t, 1234, reading.Visible)
	require.EqualValues(t, 5678, reading.Infrared)
}
