// Package imu drives the CEVA BNO08x inertial measurement unit over its
// SHTP (Sensor Hub Transport Protocol) framing.
//
// Grounded on original_source/.../device/bno086.c|h (reset-pin sequencing
// and timing, SHTP header-then-payload read shape) and bno08x.h (channel
// enum, SHTP header layout, per-channel sequence numbering). The
// original's command bytes (0x04/0x02/0x01/0x06/0x07/0x03/0x00) are a
// pigpio bit-banged-I2C transaction envelope; periph.io/x/conn/v3's
// i2c.Dev.Tx already performs that framing under a bit-banged or
// hardware I2C bus driver, so this driver issues plain Tx calls instead
// of reconstructing the envelope by hand.
package imu

import (
	"encoding/binary"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// I2CAddr is the sensor hub's I2C address.
const I2CAddr = 0x4A

// Channel identifies one of the hub's SHTP communication channels.
type Channel uint8

const (
	ChannelCommand      Channel = 0
	ChannelExecutable   Channel = 1
	ChannelControl      Channel = 2
	ChannelReports      Channel = 3
	ChannelWakeReports  Channel = 4
	ChannelGyroReports  Channel = 5
	channelCount                = 6
)

// Report IDs used by the "Set Feature Command" on ChannelControl.
const (
	ReportIDSetFeatureCommand = 0xFD
	ReportIDRotationVector    = 0x05
	ReportIDAccelerometer     = 0x01
	ReportIDGyroscope         = 0x02
	ReportIDMagneticField     = 0x03
)

// Header is the 4-byte SHTP header prefixing every packet: a 16-bit
// little-endian length (including the header itself), the channel, and a
// per-channel sequence number.
type Header struct {
	Length  uint16
	Channel Channel
	SeqNum  uint8
}

const headerSize = 4

func parseHeader(buf []byte) Header {
	length := binary.LittleEndian.Uint16(buf[0:2])
	return Header{
		Length:  length &^ 0x8000, // top bit is the continuation flag
		Channel: Channel(buf[2]),
		SeqNum:  buf[3],
	}
}

// PayloadLength is the number of payload bytes following the header.
func (h Header) PayloadLength() int {
	if int(h.Length) < headerSize {
		return 0
	}
	return int(h.Length) - headerSize
}

// Hub drives the SHTP transport: reset sequencing, header/payload reads,
// and channel writes with outgoing per-channel sequence numbering.
type Hub struct {
	dev      i2c.Dev
	reset    gpio.PinOut
	seqNums  [channelCount]uint8
	sleep    func(time.Duration)
	maxWrite int
}

func New(bus i2c.Bus, reset gpio.PinOut) *Hub {
	return &Hub{
		dev:      i2c.Dev{Bus: bus, Addr: I2CAddr},
		reset:    reset,
		sleep:    time.Sleep,
		maxWrite: 256,
	}
}

// Open performs the hub's power-on reset sequence (mirrors
// original_source/.../bno086.c's gpio toggle-and-settle timing, including
// the 500ms final settle the original found necessary for the first
// feature report to start reliably) and drains the advertisement packets
// the hub emits unsolicited on ChannelCommand after reset.
func (h *Hub) Open() error {
	if h.reset != nil {
		if err := h.reset.Out(gpio.High); err != nil {
			return wterr.New(wterr.DeviceIMU, wterr.ErrFileWrite)
		}
		h.sleep(10 * time.Millisecond)
		if err := h.reset.Out(gpio.Low); err != nil {
			return wterr.New(wterr.DeviceIMU, wterr.ErrFileWrite)
		}
		h.sleep(100 * time.Millisecond)
		if err := h.reset.Out(gpio.High); err != nil {
			return wterr.New(wterr.DeviceIMU, wterr.ErrFileWrite)
		}
		h.sleep(500 * time.Millisecond)
	}

	return h.drainAdvertisements()
}

// drainAdvertisements reads and discards packets until it reads an empty
// header or has read and discarded the first packet on a channel other
// than the command channel, giving up after 8 packets, following the
// original's expectation that the hub emits its SHTP advertisement and
// initial command-channel reports immediately after reset.
func (h *Hub) drainAdvertisements() error {
	for i := 0; i < 8; i++ {
		header, err := h.ReadHeader()
		if err != nil {
			return err
		}
		n := header.PayloadLength()
		if n == 0 {
			return nil
		}
		if _, err := h.readPayload(n); err != nil {
			return err
		}
		if header.Channel != ChannelCommand {
			return nil
		}
	}
	return nil
}

// ReadHeader reads the next 4-byte SHTP header.
func (h *Hub) ReadHeader() (Header, error) {
	buf := make([]byte, headerSize)
	if err := h.dev.Tx(nil, buf); err != nil {
		return Header{}, wterr.New(wterr.DeviceIMU, wterr.ErrFileRead)
	}
	return parseHeader(buf), nil
}

// ReadReports reads the 4-byte header in one transaction, then the
// payload it announces in a second transaction.
func (h *Hub) ReadReports() (Header, []byte, error) {
	buf := make([]byte, headerSize)
	if err := h.dev.Tx(nil, buf); err != nil {
		return Header{}, nil, wterr.New(wterr.DeviceIMU, wterr.ErrFileRead)
	}
	header := parseHeader(buf)
	n := header.PayloadLength()
	if n == 0 {
		return header, nil, nil
	}
	payload, err := h.readPayload(n)
	return header, payload, err
}

func (h *Hub) readPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := h.dev.Tx(nil, buf); err != nil {
		return nil, wterr.New(wterr.DeviceIMU, wterr.ErrFileRead)
	}
	return buf, nil
}

// Write sends a payload on the given channel, stamping it with that
// channel's next outgoing sequence number.
func (h *Hub) Write(ch Channel, payload []byte) error {
	if len(payload) == 0 || len(payload) > h.maxWrite {
		return wterr.New(wterr.DeviceIMU, wterr.ErrIMUBadPacketSize)
	}

	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(headerSize+len(payload)))
	frame[2] = byte(ch)
	frame[3] = h.seqNums[ch]
	copy(frame[headerSize:], payload)
	h.seqNums[ch]++

	if err := h.dev.Tx(frame, nil); err != nil {
		return wterr.New(wterr.DeviceIMU, wterr.ErrFileWrite)
	}
	return nil
}

// SetFeature requests periodic reports for reportID at the given interval
// on ChannelControl (the hub's "Set Feature Command").
func (h *Hub) SetFeature(reportID uint8, intervalUS uint32) error {
	payload := make([]byte, 17)
	payload[0] = ReportIDSetFeatureCommand
	payload[1] = reportID
	binary.LittleEndian.PutUint32(payload[5:9], intervalUS)
	return h.Write(ChannelControl, payload)
}

// maxSaneLength bounds a header's advertised length; a larger value
// indicates a desynchronized or garbled SHTP stream rather than a real
// oversized report.
const maxSaneLength = 1024

// ReadValidatedReports reads one header+payload and rejects headers whose
// length is implausible, signaling that the caller should close and
// reopen the hub rather than try to resynchronize mid-stream.
func (h *Hub) ReadValidatedReports() (Header, []byte, error) {
	header, payload, err := h.ReadReports()
	if err != nil {
		return Header{}, nil, err
	}
	if header.Length != 0 && int(header.Length) > maxSaneLength {
		return Header{}, nil, wterr.New(wterr.DeviceIMU, wterr.ErrIMUUnexpectedPkt)
	}
	return header, payload, nil
}
