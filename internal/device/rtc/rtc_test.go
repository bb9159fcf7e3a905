package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	regs [4]byte
}

func (f *fakeBus) String() string                 { return "fakeBus" }
func (f *fakeBus) Halt() error                     { return nil }
func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	reg := w[0]
	if len(w) == 2 {
		f.regs[reg] = w[1]
		return nil
	}
	r[0] = f.regs[reg]
	return nil
}

func TestSetThenGetCountRoundTrips(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)

	require.NoError(t, c.SetCount(0x01020304))
	got, err := c.GetCount()
	require.NoError(t, err)
	require.EqualValues(t, 0x01020304, got)
}
