// Package rtc drives the tag's battery-backed real-time counter: a
// 32-bit seconds-since-epoch register exposed as four sequential byte
// transactions.
//
// Grounded on original_source/.../device/rtc.c.
package rtc

import (
	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"periph.io/x/conn/v3/i2c"
)

const I2CAddr = 0x68

// Clock drives the RTC's 32-bit counter, little-endian across four
// single-byte registers at addresses 0-3.
type Clock struct {
	dev i2c.Dev
}

func New(bus i2c.Bus) *Clock {
	return &Clock{dev: i2c.Dev{Bus: bus, Addr: I2CAddr}}
}

// GetCount reads the 32-bit counter, little-endian byte order.
func (c *Clock) GetCount() (uint32, error) {
	var count uint32
	for i := 0; i < 4; i++ {
		buf := make([]byte, 1)
		if err := c.dev.Tx([]byte{byte(i)}, buf); err != nil {
			return 0, wterr.New(wterr.DeviceRTC, wterr.ErrFileRead)
		}
		count |= uint32(buf[0]) << (8 * i)
	}
	return count, nil
}

// SetCount writes the 32-bit counter, little-endian byte order.
func (c *Clock) SetCount(count uint32) error {
	for i := 0; i < 4; i++ {
		b := byte(count >> (8 * i))
		if err := c.dev.Tx([]byte{byte(i), b}, nil); err != nil {
			return wterr.New(wterr.DeviceRTC, wterr.ErrFileWrite)
		}
	}
	return nil
}
