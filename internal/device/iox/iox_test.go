package iox

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	output byte
}

func (f *fakeBus) String() string                 { return "fakeBus" }
func (f *fakeBus) Halt() error                     { return nil }
func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 2 && w[0] == regOutput {
		f.output = w[1]
	}
	return nil
}

func TestSetPinThenClearPinLeavesOtherBitsUntouched(t *testing.T) {
	bus := &fakeBus{}
	e := New(bus)

	require.NoError(t, e.SetPin(PinBurnwireOn))
	require.NoError(t, e.SetPin(PinBurnwireReset))
	require.EqualValues(t, PinBurnwireOn|PinBurnwireReset, bus.output)

	require.NoError(t, e.ClearPin(PinBurnwireOn))
	require.EqualValues(t, PinBurnwireReset, bus.output)
}
