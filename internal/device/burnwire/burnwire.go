// Package burnwire drives the release actuator's FET through the I/O
// expander. It implements internal/mission.Burnwire.
//
// Grounded on original_source/.../burnwire.c|h: the driver is a thin
// on/off wrapper around the expander's BW_nON bit, asserted HIGH for ON
// (see DESIGN.md's burnwire-polarity Open Question resolution).
package burnwire

import "github.com/ceti-tag/whaletag-daemon/internal/device/iox"

// Actuator turns the burnwire release FET on or off via an I/O-expander
// output pin.
type Actuator struct {
	iox *iox.Expander
}

func New(expander *iox.Expander) *Actuator {
	return &Actuator{iox: expander}
}

// On asserts the burnwire-enable pin, starting the release current.
func (a *Actuator) On() error {
	return a.iox.SetPin(iox.PinBurnwireOn)
}

// Off deasserts the burnwire-enable pin. Called on every exit path from
// BRN_ON, and unconditionally on entering SHUTDOWN.
func (a *Actuator) Off() error {
	return a.iox.ClearPin(iox.PinBurnwireOn)
}
