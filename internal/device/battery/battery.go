// Package battery drives the MAX17320 fuel-gauge/protection IC guarding
// the tag's two-cell Li-ion pack.
//
// Grounded on original_source/.../device/max17320.c|h: word-register
// read/write with automatic upper/lower I2C address selection for
// registers ≥ 0x100, the documented LSB conversion constants, and the
// shadow-RAM init sequence (design capacity + current-limit + imbalance
// threshold only — the 7-shot nonvolatile write pool is never touched).
package battery

import (
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/i2c"
)

// CellCount is the number of series cells the MAX17320 monitors on this
// pack.
const CellCount = 2

// I2C addresses: registers 0x000-0x0FF live behind the lower address,
// 0x100 and above behind the upper address (the chip exposes the same
// register file split across two 7-bit addresses).
const (
	I2CAddrLower = 0x36
	I2CAddrUpper = 0x0B
)

// Registers used by this driver (trimmed to what spec.md's read set and
// charge/discharge control need; max17320.h lists many more for the
// nonvolatile-configuration path this driver deliberately never touches).
const (
	regRepCapacity     = 0x005
	regRepSOC          = 0x006
	regTimeToEmpty     = 0x011
	regDesignCap       = 0x018
	regTemperature     = 0x01B
	regBattCurrent     = 0x01C
	regAvgBattCurrent  = 0x01D
	regTimeToFull      = 0x020
	regCommStat        = 0x061
	regCell2Voltage    = 0x0D7
	regCell1Voltage    = 0x0D8
	regCellTemperature = 0x13A // cell_index subtracted, mirrors cell voltage addressing
	regNIPrtTh1        = 0x1D3
	regNBalTh          = 0x1D4
)

const (
	rSenseOhm   = 0.010
	rSenseMOhm  = rSenseOhm * 1000.0
	designCapAh = 0x2710 // 5000mAh at rSenseOhm=0.010

	clearWriteProt   = 0x0000
	clearedWriteProt = 0x0004

	chargeOffBit    = 0x0100
	dischargeOffBit = 0x0200

	niprtth1Dev = 0x32CE
	nbalthDev   = 0x0CA0

	tRecall = 5 * time.Millisecond
)

// Gauge is the MAX17320 driver. Gauge does not own a thread; callers
// (internal/acquisition workers) poll it at their own cadence.
type Gauge struct {
	lower i2c.Dev
	upper i2c.Dev
	sleep func(time.Duration)
}

func New(bus i2c.Bus) *Gauge {
	return &Gauge{
		lower: i2c.Dev{Bus: bus, Addr: I2CAddrLower},
		upper: i2c.Dev{Bus: bus, Addr: I2CAddrUpper},
		sleep: time.Sleep,
	}
}

// ReadReg reads a 16-bit register, selecting the lower or upper I2C
// address by whether memory is below or at/above 0x100.
func (g *Gauge) ReadReg(memory uint16) (uint16, error) {
	dev, reg := g.selectDev(memory)
	buf := make([]byte, 2)
	if err := dev.Tx([]byte{byte(reg)}, buf); err != nil {
		return 0, wterr.New(wterr.DeviceBMS, wterr.ErrFileRead)
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// WriteReg writes a 16-bit register at memory.
func (g *Gauge) WriteReg(memory uint16, data uint16) error {
	dev, reg := g.selectDev(memory)
	w := []byte{byte(reg), byte(data), byte(data >> 8)}
	if err := dev.Tx(w, nil); err != nil {
		return wterr.New(wterr.DeviceBMS, wterr.ErrFileWrite)
	}
	return nil
}

func (g *Gauge) selectDev(memory uint16) (i2c.Dev, uint16) {
	if memory > 0xFF {
		return g.upper, memory & 0xFF
	}
	return g.lower, memory
}

// ClearWriteProtection disables the chip's write-protect latch, required
// before any register write. It writes twice (datasheet-recommended
// double-write with a settle delay) and confirms the readback.
func (g *Gauge) ClearWriteProtection() error {
	if err := g.WriteReg(regCommStat, clearWriteProt); err != nil {
		return err
	}
	g.sleep(tRecall)
	if err := g.WriteReg(regCommStat, clearWriteProt); err != nil {
		return err
	}
	g.sleep(tRecall)

	read, err := g.ReadReg(regCommStat)
	if err != nil {
		return err
	}
	if read != clearedWriteProt && read != clearWriteProt {
		return wterr.New(wterr.DeviceBMS, wterr.ErrBMSWriteProtFail)
	}
	return nil
}

// Init performs the shadow-RAM configuration the tag needs every boot:
// design capacity, slow current-limit threshold, and the imbalance
// charge-termination threshold. It never touches the 7-shot nonvolatile
// write pool (MAX17320_REG_N*CFG and friends) — those are factory-
// provisioned once, not re-written on every boot.
func (g *Gauge) Init() error {
	if err := g.ClearWriteProtection(); err != nil {
		return err
	}
	if err := g.WriteReg(regDesignCap, designCapAh); err != nil {
		return err
	}
	if err := g.WriteReg(regNIPrtTh1, niprtth1Dev); err != nil {
		return err
	}
	return g.WriteReg(regNBalTh, nbalthDev)
}

// Reading is one fuel-gauge snapshot across every field spec.md's
// acquisition worker publishes.
type Reading struct {
	RemainingCapacityMAh float64
	StateOfChargePercent float64
	CellVoltageV         [CellCount]float64
	CellTempC            [CellCount]float64
	DieTempC             float64
	CurrentMA            float64
	AverageCurrentMA     float64
	TimeToEmptyS         float64
	TimeToFullS          float64
}

// Read takes one full snapshot, short-circuiting on the first register
// read failure.
func (g *Gauge) Read() (Reading, error) {
	var r Reading
	var err error

	if r.RemainingCapacityMAh, err = g.readCapacityMAh(regRepCapacity); err != nil {
		return Reading{}, err
	}
	if r.StateOfChargePercent, err = g.readPercentage(regRepSOC); err != nil {
		return Reading{}, err
	}
	for i := 0; i < CellCount; i++ {
		if r.CellVoltageV[i], err = g.CellVoltageV(i); err != nil {
			return Reading{}, err
		}
		if r.CellTempC[i], err = g.CellTemperatureC(i); err != nil {
			return Reading{}, err
		}
	}
	if r.DieTempC, err = g.readTemperatureC(regTemperature); err != nil {
		return Reading{}, err
	}
	if r.CurrentMA, err = g.readCurrentMA(regBattCurrent); err != nil {
		return Reading{}, err
	}
	if r.AverageCurrentMA, err = g.readCurrentMA(regAvgBattCurrent); err != nil {
		return Reading{}, err
	}
	if r.TimeToEmptyS, err = g.readTimeS(regTimeToEmpty); err != nil {
		return Reading{}, err
	}
	if r.TimeToFullS, err = g.readTimeS(regTimeToFull); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// CellVoltageV reads one cell's voltage; cell registers count down from
// 0x0D8 (cell 0, "CELL1") by cell index, matching the original's
// `0xD8 - cell_index` addressing.
func (g *Gauge) CellVoltageV(cellIndex int) (float64, error) {
	if cellIndex < 0 || cellIndex >= CellCount {
		return 0, wterr.New(wterr.DeviceBMS, wterr.ErrBMSBadCellIndex)
	}
	raw, err := g.ReadReg(regCell1Voltage - uint16(cellIndex))
	if err != nil {
		return 0, err
	}
	return rawToVoltageV(raw), nil
}

// CellTemperatureC reads one cell's temperature probe.
func (g *Gauge) CellTemperatureC(cellIndex int) (float64, error) {
	if cellIndex < 0 || cellIndex >= CellCount {
		return 0, wterr.New(wterr.DeviceBMS, wterr.ErrBMSBadCellIndex)
	}
	raw, err := g.ReadReg(regCellTemperature - uint16(cellIndex))
	if err != nil {
		return 0, err
	}
	return rawToTemperatureC(raw), nil
}

// EnableCharging/EnableDischarging/DisableCharging/DisableDischarging
// toggle the corresponding FET-disable bit in COMM_STAT. Per the resolved
// Open Question on charge polarity (DESIGN.md), these bits are *disable*
// bits: clearing one enables the FET, setting it disables it.

func (g *Gauge) EnableCharging() error    { return g.clearCommStatBit(chargeOffBit) }
func (g *Gauge) DisableCharging() error   { return g.setCommStatBit(chargeOffBit) }
func (g *Gauge) EnableDischarging() error { return g.clearCommStatBit(dischargeOffBit) }
func (g *Gauge) DisableDischarging() error { return g.setCommStatBit(dischargeOffBit) }

func (g *Gauge) clearCommStatBit(bit uint16) error {
	v, err := g.ReadReg(regCommStat)
	if err != nil {
		return err
	}
	return g.WriteReg(regCommStat, v&^bit)
}

func (g *Gauge) setCommStatBit(bit uint16) error {
	v, err := g.ReadReg(regCommStat)
	if err != nil {
		return err
	}
	return g.WriteReg(regCommStat, v|bit)
}

func (g *Gauge) readCapacityMAh(reg uint16) (float64, error) {
	raw, err := g.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return float64(raw) * 0.005 / rSenseOhm, nil
}

func (g *Gauge) readPercentage(reg uint16) (float64, error) {
	raw, err := g.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 256.0, nil
}

func (g *Gauge) readTemperatureC(reg uint16) (float64, error) {
	raw, err := g.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return rawToTemperatureC(raw), nil
}

func (g *Gauge) readCurrentMA(reg uint16) (float64, error) {
	raw, err := g.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * 1.5625 / rSenseMOhm, nil
}

func (g *Gauge) readTimeS(reg uint16) (float64, error) {
	raw, err := g.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return float64(raw) * 5.625, nil
}

func rawToVoltageV(raw uint16) float64     { return float64(raw) * 0.000078125 }
func rawToTemperatureC(raw uint16) float64 { return float64(int16(raw)) / 256.0 }
