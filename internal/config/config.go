// Package config loads the tag's mission configuration: a flat,
// line-oriented key=value text file parsed once at startup into an
// immutable TagConfig. There is no hot-reload and no environment-variable
// override layer — the configuration is read-after-init for the life of
// the process, by design (a field change requires a restart).
//
// Grounded on the original firmware's config table (one CONFIG_DEFAULT_*
// per field, parsed from a flat file) and on the teacher's koanf-based
// loader, narrowed from YAML + env-var layering down to a single
// properties-format file source.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/device/audio"
	"github.com/knadh/koanf/parsers/properties"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AudioMode selects the hydrophone ADC channel/filter configuration.
type AudioMode string

const (
	AudioModeQuad   AudioMode = "quad" // four independent channels
	AudioModeStereo AudioMode = "stereo"
)

// AudioConfig describes the ADC configuration requested at mission start;
// internal/device/audio validates the (SampleRate, PowerMode) tuple
// against its rate table and BitDepth/Filter against the FPGA's and
// ADC's supported values, before the acquisition feeder starts.
type AudioConfig struct {
	Mode       AudioMode        `koanf:"audio_mode"`
	SampleRate int              `koanf:"audio_sample_rate_hz"`
	PowerMode  audio.PowerMode  `koanf:"audio_power_mode"`
	BitDepth   int              `koanf:"audio_bit_depth"`
	Filter     audio.FilterType `koanf:"audio_filter"`
}

// TimeOfDay is a wall-clock hour:minute with an explicit validity flag,
// mirroring the original's `tm` struct plus a `valid` bit rather than
// using a sentinel value to mean "unset".
type TimeOfDay struct {
	Valid bool
	Hour  int
	Min   int
}

// RecoveryConfig carries the parameters handed to the (externally owned)
// APRS recovery radio on BRN_ON; this process never frames APRS packets
// itself, it only persists the operator-supplied identity.
type RecoveryConfig struct {
	FreqMHz       float64 `koanf:"recovery_freq_mhz"`
	Callsign      string  `koanf:"recovery_callsign"`
	CallsignSSID  int     `koanf:"recovery_callsign_ssid"`
	Recipient     string  `koanf:"recovery_recipient"`
	RecipientSSID int     `koanf:"recovery_recipient_ssid"`
}

// TagConfig is the complete, immutable mission configuration. It is built
// once by Load and never mutated afterward; every field carries a
// CONFIG_DEFAULT_* style default applied before the file is read, so a
// config file only needs to list the values it wants to override.
type TagConfig struct {
	Audio AudioConfig `koanf:",squash"`

	SurfacePressureBar float64 `koanf:"surface_pressure_bar"`
	DivePressureBar    float64 `koanf:"dive_pressure_bar"`

	ReleaseVoltageV  float64 `koanf:"release_voltage_v"`
	CriticalVoltageV float64 `koanf:"critical_voltage_v"`

	TimeoutS      int64     `koanf:"timeout_s"`
	TODRelease    TimeOfDay `koanf:"-"`
	BurnIntervalS int64     `koanf:"burn_interval_s"`

	// MissionSensorSilenceS is how long the pressure and battery rings
	// may both go unpublished before the mission controller treats the
	// tag as having lost its sensors and forces the low-battery BRN_ON
	// release path (the "sensor silence" mission-critical error).
	MissionSensorSilenceS int64 `koanf:"mission_sensor_silence_s"`

	Recovery RecoveryConfig `koanf:",squash"`
}

// Default mission-config values, used when a key is absent from the file.
const (
	DefaultSurfacePressureBar    = 1.0
	DefaultDivePressureBar       = 3.0
	DefaultReleaseVoltageV       = 3.5
	DefaultCriticalVoltageV      = 3.1
	DefaultTimeoutS              = int64(24 * time.Hour / time.Second)
	DefaultBurnIntervalS         = int64(300)
	DefaultAudioSampleRateHz     = 48000
	DefaultAudioPowerMode        = audio.PowerModeEco
	DefaultAudioBitDepth         = 16
	DefaultAudioFilter           = audio.FilterSinc
	DefaultMissionSensorSilenceS = int64(600)
)

// MissionBMSConsecutiveErrorThreshold is the run-length of consecutive
// errored battery samples treated as "low battery" on its own, independent
// of any voltage reading (spec design constant).
const MissionBMSConsecutiveErrorThreshold = 5

func defaultConfig() TagConfig {
	return TagConfig{
		Audio: AudioConfig{
			Mode:       AudioModeQuad,
			SampleRate: DefaultAudioSampleRateHz,
			PowerMode:  DefaultAudioPowerMode,
			BitDepth:   DefaultAudioBitDepth,
			Filter:     DefaultAudioFilter,
		},
		SurfacePressureBar:    DefaultSurfacePressureBar,
		DivePressureBar:       DefaultDivePressureBar,
		ReleaseVoltageV:       DefaultReleaseVoltageV,
		CriticalVoltageV:      DefaultCriticalVoltageV,
		TimeoutS:              DefaultTimeoutS,
		BurnIntervalS:         DefaultBurnIntervalS,
		MissionSensorSilenceS: DefaultMissionSensorSilenceS,
	}
}

// Load reads and parses a flat key=value configuration file at path,
// applying defaults for any field the file omits, then validates the
// result. The returned TagConfig must be treated as immutable.
func Load(path string) (*TagConfig, error) {
	k := koanf.New(".")

	cfg := defaultConfig()
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: seed defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), properties.Parser()); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if raw := k.String("tod_release"); raw != "" {
		tod, err := parseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("config: tod_release: %w", err)
		}
		cfg.TODRelease = tod
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// parseTimeOfDay parses an "HH:MM" wall-clock string.
func parseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("want HH:MM, got %q: %w", s, err)
	}
	return TimeOfDay{Valid: true, Hour: t.Hour(), Min: t.Minute()}, nil
}

// Validate rejects a configuration the mission controller could not run
// safely: a programmer/operator error that must fail fast at startup,
// never at steady state.
func (c *TagConfig) Validate() error {
	if c.DivePressureBar <= c.SurfacePressureBar {
		return fmt.Errorf("dive_pressure_bar (%.3f) must exceed surface_pressure_bar (%.3f)", c.DivePressureBar, c.SurfacePressureBar)
	}
	if c.CriticalVoltageV >= c.ReleaseVoltageV {
		return fmt.Errorf("critical_voltage_v (%.3f) must be below release_voltage_v (%.3f)", c.CriticalVoltageV, c.ReleaseVoltageV)
	}
	if c.TimeoutS <= 0 {
		return fmt.Errorf("timeout_s must be positive, got %d", c.TimeoutS)
	}
	if c.BurnIntervalS <= 0 {
		return fmt.Errorf("burn_interval_s must be positive, got %d", c.BurnIntervalS)
	}
	if c.MissionSensorSilenceS <= 0 {
		return fmt.Errorf("mission_sensor_silence_s must be positive, got %d", c.MissionSensorSilenceS)
	}
	if c.Audio.Mode != AudioModeQuad && c.Audio.Mode != AudioModeStereo {
		return fmt.Errorf("audio_mode must be %q or %q, got %q", AudioModeQuad, AudioModeStereo, c.Audio.Mode)
	}
	if _, err := audio.Lookup(c.Audio.SampleRate, c.Audio.PowerMode); err != nil {
		return fmt.Errorf("audio_sample_rate_hz/audio_power_mode: no known-good combination for %d Hz at power mode %q: %w", c.Audio.SampleRate, c.Audio.PowerMode, err)
	}
	if err := audio.ValidateBitDepth(c.Audio.BitDepth); err != nil {
		return fmt.Errorf("audio_bit_depth: %w", err)
	}
	if err := audio.ValidateFilter(c.Audio.Filter); err != nil {
		return fmt.Errorf("audio_filter: %w", err)
	}
	if c.TODRelease.Valid {
		if c.TODRelease.Hour < 0 || c.TODRelease.Hour > 23 || c.TODRelease.Min < 0 || c.TODRelease.Min > 59 {
			return fmt.Errorf("tod_release out of range: %02d:%02d", c.TODRelease.Hour, c.TODRelease.Min)
		}
	}
	return nil
}

// Save writes c back out in the same flat key=value format it was loaded
// from, so an operator-edited running config can be checked by round-
// tripping it through Load. This is a diagnostic convenience, not part of
// the steady-state runtime path.
func (c *TagConfig) Save(path string) error {
	lines := []string{
		fmt.Sprintf("audio_mode=%s", c.Audio.Mode),
		fmt.Sprintf("audio_sample_rate_hz=%d", c.Audio.SampleRate),
		fmt.Sprintf("audio_power_mode=%s", c.Audio.PowerMode),
		fmt.Sprintf("audio_bit_depth=%d", c.Audio.BitDepth),
		fmt.Sprintf("audio_filter=%s", c.Audio.Filter),
		fmt.Sprintf("surface_pressure_bar=%g", c.SurfacePressureBar),
		fmt.Sprintf("dive_pressure_bar=%g", c.DivePressureBar),
		fmt.Sprintf("release_voltage_v=%g", c.ReleaseVoltageV),
		fmt.Sprintf("critical_voltage_v=%g", c.CriticalVoltageV),
		fmt.Sprintf("timeout_s=%d", c.TimeoutS),
		fmt.Sprintf("burn_interval_s=%d", c.BurnIntervalS),
		fmt.Sprintf("mission_sensor_silence_s=%d", c.MissionSensorSilenceS),
	}
	if c.TODRelease.Valid {
		lines = append(lines, fmt.Sprintf("tod_release=%02d:%02d", c.TODRelease.Hour, c.TODRelease.Min))
	}
	if c.Recovery.Callsign != "" {
		lines = append(lines,
			fmt.Sprintf("recovery_freq_mhz=%g", c.Recovery.FreqMHz),
			fmt.Sprintf("recovery_callsign=%s", c.Recovery.Callsign),
			fmt.Sprintf("recovery_callsign_ssid=%d", c.Recovery.CallsignSSID),
			fmt.Sprintf("recovery_recipient=%s", c.Recovery.Recipient),
			fmt.Sprintf("recovery_recipient_ssid=%d", c.Recovery.RecipientSSID),
		)
	}

	data := []byte{}
	for _, line := range lines {
		data = append(data, line...)
		data = append(data, '\n')
	}
	// #nosec G306 -- config file, not secret material
	return os.WriteFile(path, data, 0644)
}
