package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/clock"
	"github.com/ceti-tag/whaletag-daemon/internal/config"
	"github.com/ceti-tag/whaletag-daemon/internal/device/audio"
	"github.com/ceti-tag/whaletag-daemon/internal/device/battery"
	"github.com/ceti-tag/whaletag-daemon/internal/device/rtc"
	"github.com/ceti-tag/whaletag-daemon/internal/mission"
	"github.com/ceti-tag/whaletag-daemon/internal/sample"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestBlockSizeFor(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		bitDepth int
		want     int
	}{
		{"quad 16-bit", 4, 16, 512 * 4 * 2},
		{"stereo 16-bit", 2, 16, 512 * 2 * 2},
		{"quad 24-bit rounds up to 3 bytes", 4, 24, 512 * 4 * 3},
		{"stereo 8-bit", 2, 8, 512 * 2 * 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, blockSizeFor(tt.channels, tt.bitDepth))
		})
	}
}

// fakeRTCBus is the same fake i2c.Bus rtc's own tests use, reused here
// since syncRTC takes a concrete *rtc.Clock rather than an interface.
type fakeRTCBus struct {
	regs [4]byte
}

func (f *fakeRTCBus) String() string                 { return "fakeRTCBus" }
func (f *fakeRTCBus) Halt() error                     { return nil }
func (f *fakeRTCBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeRTCBus) Tx(addr uint16, w, r []byte) error {
	reg := w[0]
	if len(w) == 2 {
		f.regs[reg] = w[1]
		return nil
	}
	r[0] = f.regs[reg]
	return nil
}

func TestSyncRTCWithinThresholdDoesNotRewrite(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bus := &fakeRTCBus{}
	rc := rtc.New(bus)
	require.NoError(t, rc.SetCount(uint32(now.Unix())))

	require.NoError(t, syncRTC(rc, clock.NewFake(now), nil))

	got, err := rc.GetCount()
	require.NoError(t, err)
	require.EqualValues(t, now.Unix(), got)
}

func TestSyncRTCBeyondThresholdRewrites(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bus := &fakeRTCBus{}
	rc := rtc.New(bus)
	require.NoError(t, rc.SetCount(uint32(now.Add(-10*time.Second).Unix())))

	require.NoError(t, syncRTC(rc, clock.NewFake(now), nil))

	got, err := rc.GetCount()
	require.NoError(t, err)
	require.EqualValues(t, now.Unix(), got)
}

func TestSyncRTCNegativeDriftAlsoRewrites(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bus := &fakeRTCBus{}
	rc := rtc.New(bus)
	require.NoError(t, rc.SetCount(uint32(now.Add(10*time.Second).Unix())))

	require.NoError(t, syncRTC(rc, clock.NewFake(now), nil))

	got, err := rc.GetCount()
	require.NoError(t, err)
	require.EqualValues(t, now.Unix(), got)
}

func TestCellReaderAdapterShiftsToZeroIndexed(t *testing.T) {
	bus := &fakeBatteryBus{}
	gauge := battery.New(bus)
	a := cellReaderAdapter{gauge: gauge}

	_, err := a.ReadCellVoltage(1)
	require.NoError(t, err)
	_, err = a.ReadCellVoltage(2)
	require.NoError(t, err)
}

// fakeBatteryBus accepts any transaction without error; cellReaderAdapter's
// own index-shift arithmetic (cell-1) is what's under test here, not the
// gauge's register decoding, which battery's own tests already cover.
type fakeBatteryBus struct{}

func (f *fakeBatteryBus) String() string                 { return "fakeBatteryBus" }
func (f *fakeBatteryBus) Halt() error                     { return nil }
func (f *fakeBatteryBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBatteryBus) Tx(addr uint16, w, r []byte) error {
	for i := range r {
		r[i] = 0
	}
	return nil
}

func TestBatteryDriverAdapterReturnsFullReading(t *testing.T) {
	bus := &fakeBatteryBus{}
	gauge := battery.New(bus)
	a := batteryDriverAdapter{gauge: gauge}

	r, err := a.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, r.CellVoltageV, 2)
}

func TestBatteryPayloadFromNarrowsToCellVoltages(t *testing.T) {
	s := sample.Sample[battery.Reading]{
		TimestampUS: 123,
		Payload: battery.Reading{
			CellVoltageV:         [2]float64{4.01, 4.02},
			RemainingCapacityMAh: 900,
			StateOfChargePercent: 80,
		},
	}

	got := batteryPayloadFrom(s)
	require.Equal(t, int64(123), got.TimestampUS)
	require.Equal(t, [2]float64{4.01, 4.02}, got.Payload.CellVoltageV)
}

func TestBatteryPayloadFromPropagatesError(t *testing.T) {
	s := sample.Sample[battery.Reading]{Err: context.DeadlineExceeded}
	got := batteryPayloadFrom(s)
	require.ErrorIs(t, got.Err, context.DeadlineExceeded)
}

type fakeBurnwire struct{ on bool }

func (f *fakeBurnwire) On() error  { f.on = true; return nil }
func (f *fakeBurnwire) Off() error { f.on = false; return nil }

func TestMissionStateAdapterDelegatesToControllerState(t *testing.T) {
	c := mission.NewController(minimalTagConfig(), &fakeBurnwire{}, nil)
	a := missionStateAdapter{c: c}
	require.Equal(t, c.State().String(), a.StateName())
}

func minimalTagConfig() *config.TagConfig {
	return &config.TagConfig{
		SurfacePressureBar:    1.0,
		DivePressureBar:       3.0,
		ReleaseVoltageV:       3.5,
		CriticalVoltageV:      3.1,
		TimeoutS:              3600,
		BurnIntervalS:         300,
		MissionSensorSilenceS: 600,
	}
}

func TestWireAudioPipelineRejectsUnknownRateCombinationBeforeTouchingHardware(t *testing.T) {
	cfg := &config.TagConfig{
		Audio: config.AudioConfig{
			Mode:       config.AudioModeQuad,
			SampleRate: 44100, // not in the rate table at any power mode
			PowerMode:  audio.PowerModeEco,
			BitDepth:   16,
			Filter:     audio.FilterSinc,
		},
	}

	err := wireAudioPipeline(nil, nil, cfg, 0, nil)
	require.Error(t, err)
}

func TestWireAudioPipelineRejectsUnknownBitDepth(t *testing.T) {
	cfg := &config.TagConfig{
		Audio: config.AudioConfig{
			Mode:       config.AudioModeQuad,
			SampleRate: 48000,
			PowerMode:  audio.PowerModeEco,
			BitDepth:   32,
			Filter:     audio.FilterSinc,
		},
	}

	err := wireAudioPipeline(nil, nil, cfg, 0, nil)
	require.Error(t, err)
}

func TestRunRejectsWrongArgumentCount(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"ceti-tag"}
	require.Equal(t, 1, run())

	os.Args = []string{"ceti-tag", "a", "b"}
	require.Equal(t, 1, run())
}

func TestRunReturnsConfigErrorExitCode(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	dir := t.TempDir()
	badPath := filepath.Join(dir, "config.properties")
	require.NoError(t, os.WriteFile(badPath, []byte("dive_pressure_bar=0.5\nsurface_pressure_bar=1.0\n"), 0o644))

	os.Args = []string{"ceti-tag", badPath}
	require.Equal(t, 1, run())
}
