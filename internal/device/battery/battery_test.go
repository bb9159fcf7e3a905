package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	lowerRegs map[byte]uint16
	upperRegs map[byte]uint16
	// readOnly registers ignore writes, so a readback keeps its old value.
	readOnly map[byte]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{lowerRegs: map[byte]uint16{}, upperRegs: map[byte]uint16{}, readOnly: map[byte]bool{}}
}

func (f *fakeBus) String() string                 { return "fakeBus" }
func (f *fakeBus) Halt() error                     { return nil }
func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	regs := f.lowerRegs
	if addr == I2CAddrUpper {
		regs = f.upperRegs
	}
	reg := w[0]
	if len(w) == 3 {
		if f.readOnly[reg] {
			return nil
		}
		regs[reg] = uint16(w[1]) | uint16(w[2])<<8
		return nil
	}
	v := regs[reg]
	r[0] = byte(v)
	r[1] = byte(v >> 8)
	return nil
}

func newTestGauge() (*Gauge, *fakeBus) {
	bus := newFakeBus()
	g := New(bus)
	g.sleep = func(time.Duration) {}
	return g, bus
}

func TestReadRegSelectsUpperAddressAbove0xFF(t *testing.T) {
	g, bus := newTestGauge()
	bus.upperRegs[0x3A] = 0xBEEF // regCellTemperature & 0xFF == 0x3A

	got, err := g.ReadReg(regCellTemperature)
	require.NoError(t, err)
	require.EqualValues(t, 0xBEEF, got)
}

func TestClearWriteProtectionSucceedsWhenReadbackMatches(t *testing.T) {
	g, bus := newTestGauge()
	bus.lowerRegs[byte(regCommStat)] = clearedWriteProt
	require.NoError(t, g.ClearWriteProtection())
}

func TestClearWriteProtectionFailsOnUnexpectedReadback(t *testing.T) {
	g, bus := newTestGauge()
	bus.lowerRegs[byte(regCommStat)] = 0xFFFF
	bus.readOnly[byte(regCommStat)] = true
	err := g.ClearWriteProtection()
	require.Error(t, err)
}

func TestCellVoltageVConversion(t *testing.T) {
	g, bus := newTestGauge()
	bus.lowerRegs[byte(regCell1Voltage)] = 53248 // 53248 * 0.000078125 = 4.16
	v, err := g.CellVoltageV(0)
	require.NoError(t, err)
	require.InDelta(t, 4.16, v, 0.001)
}

func TestCellVoltageVRejectsBadIndex(t *testing.T) {
	g, _ := newTestGauge()
	_, err := g.CellVoltageV(2)
	require.Error(t, err)
}

func TestEnableChargingClearsChargeOffBit(t *testing.T) {
	g, bus := newTestGauge()
	bus.lowerRegs[byte(regCommStat)] = chargeOffBit | dischargeOffBit
	require.NoError(t, g.EnableCharging())
	require.EqualValues(t, dischargeOffBit, bus.lowerRegs[byte(regCommStat)])
}

func TestDisableDischargingSetsDischargeOffBit(t *testing.T) {
	g, bus := newTestGauge()
	bus.lowerRegs[byte(regCommStat)] = 0
	require.NoError(t, g.DisableDischarging())
	require.EqualValues(t, dischargeOffBit, bus.lowerRegs[byte(regCommStat)])
}
