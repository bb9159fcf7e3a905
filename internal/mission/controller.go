package mission

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/config"
	"github.com/ceti-tag/whaletag-daemon/internal/sample"
)

// PressurePayload is the depth-transducer reading the controller consumes.
type PressurePayload struct {
	PressureBar float64
	TempC       float64
}

// BatteryPayload is the fuel-gauge reading the controller consumes.
type BatteryPayload struct {
	CellVoltageV [2]float64
}

// Burnwire is the subset of the burnwire driver the mission controller
// needs: an on/off actuator. internal/device/burnwire implements this.
type Burnwire interface {
	On() error
	Off() error
}

// Controller runs the mission life-cycle state machine described by
// spec.md §4.1. It is a pure function of its inputs (Tick's arguments)
// plus a small amount of latched internal state (the timeout deadline,
// the burn-start time, and the battery consecutive-error count), so it is
// equally callable from the production poll loop and from table-driven
// tests.
type Controller struct {
	mu sync.Mutex

	cfg      *config.TagConfig
	burnwire Burnwire
	logger   *slog.Logger

	state State

	timeoutDeadline time.Time
	burnStart       time.Time

	batteryConsecutiveErrors uint32
}

// NewController constructs a Controller in the CONFIG state.
func NewController(cfg *config.TagConfig, burnwire Burnwire, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		burnwire: burnwire,
		logger:   logger,
		state:    Config,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ForceState sets the controller's state directly, running the same
// entry actions a normal transition into that state would run (latching
// timeout_deadline on START, engaging the burnwire and latching
// burn_start on BRN_ON, disengaging it on SHUTDOWN). Used by the "mission"
// command-channel verb and by tests that need to seed a mid-mission state
// without replaying every preceding tick.
func (c *Controller) ForceState(s State, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enterState(s, now)
}

// enterState must be called with mu held.
func (c *Controller) enterState(s State, now time.Time) {
	prev := c.state
	c.state = s

	switch s {
	case Start:
		c.timeoutDeadline = c.deadlineFrom(now)
	case BrnOn:
		c.burnStart = now
		if c.burnwire != nil {
			if err := c.burnwire.On(); err != nil {
				c.logger.Error("burnwire on failed", "error", err)
			}
		}
	case Shutdown:
		if c.burnwire != nil {
			if err := c.burnwire.Off(); err != nil {
				c.logger.Error("burnwire off failed", "error", err)
			}
		}
	}

	if prev != s {
		c.logger.Info("mission state transition", "from", prev, "to", s)
	}
}

// deadlineFrom computes the timeout_deadline latched on entering START:
// now + timeout_s, or the next occurrence of tod_release if configured.
func (c *Controller) deadlineFrom(now time.Time) time.Time {
	if c.cfg.TODRelease.Valid {
		return NextTimeOfDayOccurrence(now, c.cfg.TODRelease.Hour, c.cfg.TODRelease.Min)
	}
	return now.Add(time.Duration(c.cfg.TimeoutS) * time.Second)
}

// Tick advances the state machine by one sample period and returns the
// resulting state. pressure and battery are the latest published samples
// for this tick; a sample whose Err is non-nil is excluded from the
// decision it would otherwise drive (spec.md §4.1's "a sample whose error
// field is non-OK is not counted toward any battery-driven transition").
func (c *Controller) Tick(now time.Time, pressure sample.Sample[PressurePayload], battery sample.Sample[BatteryPayload]) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	low, critical := c.evaluateBattery(battery)
	if c.sensorsSilent(now, pressure.TimestampUS, battery.TimestampUS) {
		c.logger.Warn("pressure and battery rings both silent past threshold, forcing low-battery release",
			"silence_s", c.cfg.MissionSensorSilenceS)
		low = true
	}
	deadlinePassed := !c.timeoutDeadline.IsZero() && !now.Before(c.timeoutDeadline)

	switch c.state {
	case Config:
		c.enterState(Start, now)

	case Start:
		if pressure.Err == nil && pressure.Payload.PressureBar > c.cfg.DivePressureBar {
			c.enterState(RecordDiving, now)
		} else {
			c.enterState(RecordSurface, now)
		}

	case RecordDiving:
		switch {
		case low || critical || deadlinePassed:
			c.enterState(BrnOn, now)
		case pressure.Err == nil && pressure.Payload.PressureBar <= c.cfg.SurfacePressureBar:
			c.enterState(RecordSurface, now)
		}

	case RecordSurface:
		switch {
		case low || critical || deadlinePassed:
			c.enterState(BrnOn, now)
		case pressure.Err == nil && pressure.Payload.PressureBar > c.cfg.DivePressureBar:
			c.enterState(RecordDiving, now)
		}

	case BrnOn:
		burnElapsed := now.Sub(c.burnStart) >= time.Duration(c.cfg.BurnIntervalS)*time.Second
		switch {
		case critical:
			c.enterState(Shutdown, now)
		case burnElapsed:
			c.enterState(Retrieve, now)
		}

	case Retrieve:
		if critical {
			c.enterState(Shutdown, now)
		}

	case Shutdown:
		// terminal
	}

	return c.state
}

// evaluateBattery folds the battery sample into the low/critical
// predicates and updates the consecutive-error counter, per spec.md
// §4.1's battery decision rules.
func (c *Controller) evaluateBattery(battery sample.Sample[BatteryPayload]) (low, critical bool) {
	if battery.Err != nil {
		c.batteryConsecutiveErrors++
		return c.batteryConsecutiveErrors >= config.MissionBMSConsecutiveErrorThreshold, false
	}
	c.batteryConsecutiveErrors = 0

	for _, v := range battery.Payload.CellVoltageV {
		if v <= c.cfg.CriticalVoltageV {
			critical = true
		}
		if v <= c.cfg.ReleaseVoltageV {
			low = true
		}
	}
	return low, critical
}

// sensorsSilent reports whether both the pressure and battery rings have
// gone unpublished for longer than cfg.MissionSensorSilenceS, the
// mission-critical "sensor silence" error: a stuck I2C bus or a wedged
// acquisition worker otherwise leaves the controller forever evaluating
// the last healthy reading instead of noticing the tag has gone blind. A
// ring that has never published (TimestampUS == 0) is never counted as
// silent on its own, so a tick arriving before a worker's first sample
// cannot spuriously trip the release path at boot.
func (c *Controller) sensorsSilent(now time.Time, pressureTS, batteryTS int64) bool {
	threshold := time.Duration(c.cfg.MissionSensorSilenceS) * time.Second
	return staleSince(now, pressureTS, threshold) && staleSince(now, batteryTS, threshold)
}

// staleSince reports whether the sample published at tsUS is older than
// threshold relative to now. A zero timestamp (nothing ever published)
// is never considered stale, so a tick arriving before the first worker
// has published anything does not spuriously trip the silence path.
func staleSince(now time.Time, tsUS int64, threshold time.Duration) bool {
	if tsUS == 0 {
		return false
	}
	return now.Sub(time.UnixMicro(tsUS)) > threshold
}

// NextTimeOfDayOccurrence returns the next time `now` crosses hour:min,
// today if that moment has not yet passed, tomorrow otherwise, correctly
// advancing across month/year boundaries via time.Date's normalization.
func NextTimeOfDayOccurrence(now time.Time, hour, min int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
