package command

import (
	"fmt"
	"sync/atomic"
)

// Burnwire is the subset of the burnwire driver the command channel
// needs.
type Burnwire interface {
	On() error
	Off() error
}

// StateReader reports the mission controller's current state name, for
// the "state" status-query verb.
type StateReader interface {
	StateName() string
}

// CellReader reads a single battery cell's live voltage, bypassing the
// acquisition ring's "latest sample" semantics for a synchronous read —
// the "checkCell_1"/"checkCell_2" verbs from the original command
// surface.
type CellReader interface {
	ReadCellVoltage(cell int) (float64, error)
}

// Deps collects everything the standard handler set needs. Fields may
// be nil; a nil dependency's handlers report an error rather than
// panicking.
type Deps struct {
	Burnwire       Burnwire
	MissionPaused  *atomic.Bool
	State          StateReader
	Cells          CellReader
	Powerdown      func() error
}

// NewRegistry builds the handler set spec.md §4.5 requires at minimum,
// plus the "mission pause"/"mission resume"/"checkCell_*"/"state" verbs
// supplemented from the original's subcommands/ tree.
func NewRegistry(d Deps) Registry {
	return Registry{
		"quit": func(args []string) (string, error) {
			return "quitting", Quit
		},
		"mission pause": func(args []string) (string, error) {
			if d.MissionPaused == nil {
				return "", fmt.Errorf("mission control not wired")
			}
			d.MissionPaused.Store(true)
			return "mission paused", nil
		},
		"mission resume": func(args []string) (string, error) {
			if d.MissionPaused == nil {
				return "", fmt.Errorf("mission control not wired")
			}
			d.MissionPaused.Store(false)
			return "mission resumed", nil
		},
		"burnwire on": func(args []string) (string, error) {
			if d.Burnwire == nil {
				return "", fmt.Errorf("burnwire not wired")
			}
			if err := d.Burnwire.On(); err != nil {
				return "", err
			}
			return "burnwire on", nil
		},
		"burnwire off": func(args []string) (string, error) {
			if d.Burnwire == nil {
				return "", fmt.Errorf("burnwire not wired")
			}
			if err := d.Burnwire.Off(); err != nil {
				return "", err
			}
			return "burnwire off", nil
		},
		"checkCell_1": func(args []string) (string, error) {
			return checkCell(d.Cells, 1)
		},
		"checkCell_2": func(args []string) (string, error) {
			return checkCell(d.Cells, 2)
		},
		"powerdown": func(args []string) (string, error) {
			if d.Powerdown == nil {
				return "", fmt.Errorf("powerdown not wired")
			}
			if err := d.Powerdown(); err != nil {
				return "", err
			}
			return "powering down", nil
		},
		"state": func(args []string) (string, error) {
			if d.State == nil {
				return "", fmt.Errorf("mission control not wired")
			}
			return d.State.StateName(), nil
		},
	}
}

func checkCell(cells CellReader, cell int) (string, error) {
	if cells == nil {
		return "", fmt.Errorf("battery not wired")
	}
	v, err := cells.ReadCellVoltage(cell)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cell %d: %.4f V", cell, v), nil
}
