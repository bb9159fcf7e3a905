// Package wterr defines the unified fallible result used by every device
// driver and acquisition worker: a packed (device, code) pair carried as a
// Go error.
package wterr

import "fmt"

// DeviceID identifies the peripheral a result originated from.
type DeviceID uint16

// Device identifiers, mirroring the original firmware's wt_device_id_e.
const (
	DeviceNone DeviceID = iota
	DeviceFPGA
	DeviceAudio
	DeviceBMS
	DeviceECGADC
	DeviceIMU
	DeviceIOX
	DeviceLight
	DevicePressure
	DeviceRecovery
	DeviceRTC
	DeviceTemperature
	DeviceBurnwire
)

func (d DeviceID) String() string {
	switch d {
	case DeviceNone:
		return "none"
	case DeviceFPGA:
		return "fpga"
	case DeviceAudio:
		return "audio"
	case DeviceBMS:
		return "bms"
	case DeviceECGADC:
		return "ecg"
	case DeviceIMU:
		return "imu"
	case DeviceIOX:
		return "iox"
	case DeviceLight:
		return "light"
	case DevicePressure:
		return "pressure"
	case DeviceRecovery:
		return "recovery"
	case DeviceRTC:
		return "rtc"
	case DeviceTemperature:
		return "temperature"
	case DeviceBurnwire:
		return "burnwire"
	default:
		return fmt.Sprintf("device(%d)", uint16(d))
	}
}

// Code is a signed error code, positive values mean "check an underlying
// bus/OS error", negative values are domain-specific error kinds defined
// below. Zero is always OK.
type Code int16

// OK is the zero error code: no error.
const OK Code = 0

// Bus/IO error kinds, positive range (mirrors errno-style reporting from the
// original pigpio-backed transport).
const (
	ErrFileOpen  Code = 1
	ErrFileRead  Code = 2
	ErrFileWrite Code = 3
)

// Domain-specific error kinds, negative range.
const (
	ErrMalloc Code = -147

	ErrBadAudioBitDepth  Code = -148
	ErrBadAudioFilter    Code = -149
	ErrBadAudioRate      Code = -150
	ErrBMSWriteProtFail  Code = -151
	ErrBMSBadCellIndex   Code = -152
	ErrBadECGRate        Code = -153
	ErrBadECGChannel     Code = -154
	ErrECGTimeout        Code = -155
	ErrFPGANotDone       Code = -156
	ErrIMUBadPacketSize  Code = -157
	ErrIMUUnexpectedPkt  Code = -158
	ErrBadIOXGPIO        Code = -159
	ErrBadIOXMode        Code = -160
	ErrRecoveryTimeout   Code = -161
	ErrPressureInvalid   Code = -162
	ErrPressureBusy      Code = -163
	ErrLightInvalid      Code = -164
	ErrDiscard           Code = -165
	ErrFPGAFraming       Code = -166
	ErrFPGAChecksum      Code = -167
)

// Error is the (device, code) pair. It satisfies the error interface so it
// composes with fmt.Errorf("...: %w", err) and errors.As.
type Error struct {
	Device DeviceID
	Code   Code
}

// New builds an Error for device with the given code. It returns nil (a
// typed nil *Error boxed as error would be a foot-gun) when code is OK, so
// callers can write `return wterr.New(wterr.DevicePressure, code)` directly
// from a driver method that returns a plain error.
func New(device DeviceID, code Code) error {
	if code == OK {
		return nil
	}
	return &Error{Device: device, Code: code}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Device, describe(e.Code))
}

func describe(c Code) string {
	switch c {
	case ErrFileOpen:
		return "file open failed (check errno)"
	case ErrFileRead:
		return "file read failed (check errno)"
	case ErrFileWrite:
		return "file write failed (check errno)"
	case ErrMalloc:
		return "allocation failure"
	case ErrBadAudioBitDepth:
		return "unsupported audio bit depth"
	case ErrBadAudioFilter:
		return "unsupported audio filter"
	case ErrBadAudioRate:
		return "unsupported audio sample rate"
	case ErrBMSWriteProtFail:
		return "BMS write-protection disable failed"
	case ErrBMSBadCellIndex:
		return "invalid battery cell index"
	case ErrBadECGRate:
		return "unsupported ECG data rate"
	case ErrBadECGChannel:
		return "invalid ECG channel"
	case ErrECGTimeout:
		return "ECG data-ready timeout"
	case ErrFPGANotDone:
		return "FPGA not configured (nDONE not asserted)"
	case ErrIMUBadPacketSize:
		return "IMU reported a non-positive packet length"
	case ErrIMUUnexpectedPkt:
		return "IMU returned an unexpected or malformed packet"
	case ErrBadIOXGPIO:
		return "invalid I/O expander pin"
	case ErrBadIOXMode:
		return "invalid I/O expander pin mode"
	case ErrRecoveryTimeout:
		return "recovery radio timeout"
	case ErrPressureInvalid:
		return "pressure sensor returned an invalid status byte"
	case ErrPressureBusy:
		return "pressure sensor busy"
	case ErrLightInvalid:
		return "light sensor status invalid or stale"
	case ErrDiscard:
		return "logger in discard mode"
	case ErrFPGAFraming:
		return "FPGA CAM response missing STX/ETX framing"
	case ErrFPGAChecksum:
		return "FPGA CAM response checksum mismatch"
	default:
		return fmt.Sprintf("error(%d)", int16(c))
	}
}

// As reports whether err is a *wterr.Error and returns its code, for callers
// that need to branch on the kind of failure (e.g. the mission controller's
// consecutive-error filter only cares that err != nil).
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
