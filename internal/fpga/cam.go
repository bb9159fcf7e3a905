// Package fpga drives the tag's audio/power-management FPGA over its CAM
// ("Control and Monitor") bus: an 8-byte, bit-banged, clocked
// request/response frame (STX, opcode, arg0, arg1, payload0, payload1,
// checksum, ETX) used for ADC register access, FIFO control, and the
// final BMS power-cut command.
//
// Grounded on original_source/.../device/fpga.h (opcode table, the
// adc_read/adc_write/shutdown macro shapes) and device/gpio.h
// (FPGA_CAM_SCK/DOUT/DIN/RESET pin roles, the flow-control and
// audio-overflow GPIO signals); fpga.c itself was not retained in the
// reference pack, so the exact wire framing (STX/ETX/checksum byte
// positions) and the bit-banged clock's ~100us half-period are taken as
// given external-interface constants. The shift-register transport
// follows the same half-period bit-bang idiom periph.io/x/host's
// software SPI/I2C drivers use.
package fpga

import (
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/gpio"
)

// FrameSize is the fixed CAM message length in bytes.
const FrameSize = 8

// Opcodes, per original_source/.../device/fpga.h's macro table.
const (
	OpADCReadWrite    = 0x01
	OpADCSync         = 0x02
	OpFIFOReset       = 0x03
	OpFIFOStart       = 0x04
	OpFIFOStop        = 0x05
	OpBatteryPowerCut = 0x0E
	OpFIFOBitDepth    = 0x11
	adcReadFlag       = 0x80
)

const (
	stx = 0x02
	etx = 0x03
)

// HalfPeriod is the bit-bang clock's half-period; each bit takes two
// half-periods (clock low, then high) to shift.
const HalfPeriod = 100 * time.Microsecond

// Bus is the bit-banged CAM transport: a shift clock plus host->FPGA and
// FPGA->host data lines, a reset line, and the hardware flow-control and
// audio-FIFO-overflow status lines.
type Bus struct {
	clock    gpio.PinOut
	dataOut  gpio.PinOut
	dataIn   gpio.PinIn
	reset    gpio.PinOut
	flowCtrl gpio.PinIn // high = FIFO above high-water mark, stop draining
	overflow gpio.PinIn // high = FIFO overflowed since last check
	sleep    func(time.Duration)
}

func New(clock, dataOut gpio.PinOut, dataIn gpio.PinIn, reset gpio.PinOut, flowCtrl, overflow gpio.PinIn) *Bus {
	return &Bus{
		clock:    clock,
		dataOut:  dataOut,
		dataIn:   dataIn,
		reset:    reset,
		flowCtrl: flowCtrl,
		overflow: overflow,
		sleep:    time.Sleep,
	}
}

// Reset toggles the FPGA's reset line.
func (b *Bus) Reset() error {
	if err := b.reset.Out(gpio.Low); err != nil {
		return wterr.New(wterr.DeviceFPGA, wterr.ErrFileWrite)
	}
	b.sleep(10 * time.Millisecond)
	if err := b.reset.Out(gpio.High); err != nil {
		return wterr.New(wterr.DeviceFPGA, wterr.ErrFileWrite)
	}
	b.sleep(10 * time.Millisecond)
	return nil
}

// checksum sums bytes 1..5 (opcode, arg0, arg1, pld0, pld1) mod 256.
func checksum(body [5]byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return sum
}

// frame packs a CAM request: STX, opcode, arg0, arg1, pld0, pld1,
// checksum, ETX.
func frame(opcode, arg0, arg1, pld0, pld1 byte) [FrameSize]byte {
	body := [5]byte{opcode, arg0, arg1, pld0, pld1}
	return [FrameSize]byte{stx, body[0], body[1], body[2], body[3], body[4], checksum(body), etx}
}

// CAM shifts one 8-byte request out and the 8-byte response in, MSB
// first, toggling the clock once per bit, and validates the response's
// STX/ETX framing and checksum.
func (b *Bus) CAM(opcode, arg0, arg1, pld0, pld1 byte) ([FrameSize]byte, error) {
	req := frame(opcode, arg0, arg1, pld0, pld1)
	var resp [FrameSize]byte

	for i := 0; i < FrameSize; i++ {
		for bit := 7; bit >= 0; bit-- {
			level := gpio.Low
			if req[i]&(1<<uint(bit)) != 0 {
				level = gpio.High
			}
			if err := b.dataOut.Out(level); err != nil {
				return resp, wterr.New(wterr.DeviceFPGA, wterr.ErrFileWrite)
			}
			if err := b.clock.Out(gpio.High); err != nil {
				return resp, wterr.New(wterr.DeviceFPGA, wterr.ErrFileWrite)
			}
			b.sleep(HalfPeriod)

			if b.dataIn.Read() == gpio.High {
				resp[i] |= 1 << uint(bit)
			}

			if err := b.clock.Out(gpio.Low); err != nil {
				return resp, wterr.New(wterr.DeviceFPGA, wterr.ErrFileWrite)
			}
			b.sleep(HalfPeriod)
		}
	}

	if resp[0] != stx || resp[7] != etx {
		return resp, wterr.New(wterr.DeviceFPGA, wterr.ErrFPGAFraming)
	}
	if resp[6] != checksum([5]byte{resp[1], resp[2], resp[3], resp[4], resp[5]}) {
		return resp, wterr.New(wterr.DeviceFPGA, wterr.ErrFPGAChecksum)
	}
	return resp, nil
}

// ADCWrite writes value to an ADC configuration register.
func (b *Bus) ADCWrite(addr, value byte) error {
	_, err := b.CAM(OpADCReadWrite, addr, value, 0, 0)
	return err
}

// ADCRead reads an ADC configuration register. Matches the original's
// two-transaction shape: the first CAM issues the read request, the
// second retrieves the response latched by the FPGA.
func (b *Bus) ADCRead(addr byte) (uint16, error) {
	if _, err := b.CAM(OpADCReadWrite, adcReadFlag|addr, 0, 0, 0); err != nil {
		return 0, err
	}
	resp, err := b.CAM(OpADCReadWrite, adcReadFlag|addr, 0, 0, 0)
	if err != nil {
		return 0, err
	}
	return uint16(resp[4])<<8 | uint16(resp[5]), nil
}

// ADCSync synchronizes ADC hardware to its configuration registers.
func (b *Bus) ADCSync() error {
	_, err := b.CAM(OpADCSync, 0, 0, 0, 0)
	return err
}

// FIFOReset resets the audio FIFO.
func (b *Bus) FIFOReset() error {
	_, err := b.CAM(OpFIFOReset, 0, 0, 0, 0)
	return err
}

// FIFOStart starts the audio FIFO.
func (b *Bus) FIFOStart() error {
	_, err := b.CAM(OpFIFOStart, 0, 0, 0, 0)
	return err
}

// FIFOStop stops the audio FIFO.
func (b *Bus) FIFOStop() error {
	_, err := b.CAM(OpFIFOStop, 0, 0, 0, 0)
	return err
}

// FIFOSetBitDepth sets the audio FIFO's per-channel sample bit depth.
func (b *Bus) FIFOSetBitDepth(bitDepth byte) error {
	_, err := b.CAM(OpFIFOBitDepth, bitDepth, 0, 0, 0)
	return err
}

// CutBatteryPower sends the final BMS power-cut command. Per the
// original's wt_fpga_shutdown comment, this is only issued after the
// host has already begun its own shutdown: the FPGA disables charging
// and discharging by writing the BMS's COMM_STAT register directly,
// severing power to the host. A charger connection is required to wake
// the tag afterward.
func (b *Bus) CutBatteryPower() error {
	const bmsI2CAddr = 0x36
	const bmsCommStatReg = 0x61
	const bmsDisableBoth = 0x03
	_, err := b.CAM(OpBatteryPowerCut, bmsI2CAddr, bmsCommStatReg, bmsDisableBoth, 0x00)
	return err
}

// FlowControlHigh reports whether the FIFO is at or above its high-water
// mark (hardware backpressure: stop draining until it clears).
func (b *Bus) FlowControlHigh() bool {
	return b.flowCtrl != nil && b.flowCtrl.Read() == gpio.High
}

// OverflowDetected reports whether the FIFO has overflowed since the
// last check.
func (b *Bus) OverflowDetected() bool {
	return b.overflow != nil && b.overflow.Read() == gpio.High
}
