// Package audio describes the AD7768 sigma-delta audio ADC's
// configuration (channel mode, filter, power mode, clock dividers) and
// validates (sample rate, power mode) tuples, bit depths and filters
// against a known-good rate table. It performs no bus I/O: nothing here
// programs the ADC over SPI or through the FPGA's CAM link, and there is
// no per-channel standby control.
//
// Grounded on original_source/TagV3.0_U575VGT/.../Sensor Src/audio.c
// (channel mode/filter/power-mode struct shape, the 96kHz/192kHz
// audio_set_sample_rate cases).
package audio

import (
	_ "embed"
	"fmt"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"gopkg.in/yaml.v3"
)

//go:embed ratetable.yaml
var rateTableYAML []byte

// PowerMode selects the AD7768's power/decimation-filter operating point.
type PowerMode string

const (
	PowerModeMedian PowerMode = "median"
	PowerModeFast   PowerMode = "fast"
	PowerModeEco    PowerMode = "eco"
)

// FilterType selects a channel's decimation filter response.
type FilterType string

const (
	FilterSinc     FilterType = "sinc"
	FilterWideband FilterType = "wideband"
)

// RateEntry is one valid (sample rate, power mode, MCLK/DCLK divider)
// combination.
type RateEntry struct {
	SampleRateHz int       `yaml:"sample_rate_hz"`
	PowerMode    PowerMode `yaml:"power_mode"`
	MCLKDiv      int       `yaml:"mclk_div"`
	DCLKDiv      int       `yaml:"dclk_div"`
}

var rateTable []RateEntry

func init() {
	if err := yaml.Unmarshal(rateTableYAML, &rateTable); err != nil {
		panic(fmt.Sprintf("audio: embedded rate table is malformed: %v", err))
	}
}

// Lookup returns the divider configuration for sampleRateHz at powerMode,
// failing if the combination isn't in the known-good table.
func Lookup(sampleRateHz int, powerMode PowerMode) (RateEntry, error) {
	for _, e := range rateTable {
		if e.SampleRateHz == sampleRateHz && e.PowerMode == powerMode {
			return e, nil
		}
	}
	return RateEntry{}, wterr.New(wterr.DeviceAudio, wterr.ErrBadAudioRate)
}

// ChannelMode selects which of the ADC's two filter/decimation profiles a
// channel uses.
type ChannelMode uint8

const (
	ModeA ChannelMode = iota
	ModeB
)

// ChannelConfig is one channel's standby state and filter-profile
// assignment.
type ChannelConfig struct {
	Standby bool
	Mode    ChannelMode
}

// Config is the full ADC configuration: four channels plus the two
// filter-profile definitions and the selected rate-table entry.
type Config struct {
	Channels   [4]ChannelConfig
	ModeFilter [2]FilterType
	ModeDecim  [2]int // decimation ratio, e.g. 32 for DEC_X32
	Rate       RateEntry
}

// ValidateBitDepth rejects any FIFO packing bit depth other than the
// FPGA's two supported alignments, 16- or 24-bit.
func ValidateBitDepth(bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 {
		return wterr.New(wterr.DeviceAudio, wterr.ErrBadAudioBitDepth)
	}
	return nil
}

// ValidateFilter rejects any filter type outside the two the ADC
// supports.
func ValidateFilter(f FilterType) error {
	if f != FilterSinc && f != FilterWideband {
		return wterr.New(wterr.DeviceAudio, wterr.ErrBadAudioFilter)
	}
	return nil
}
