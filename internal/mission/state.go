// Package mission implements the tag's life-cycle state machine: the FSM
// that advances the tag from CONFIG through RECORD_DIVING/RECORD_SURFACE to
// BRN_ON, RETRIEVE, and finally SHUTDOWN, based on pressure, battery, and
// wall-clock inputs.
//
// Grounded on original_source/TagV3.0_U575VGT/Core/Src/Lib Src/state_machine.c
// and its Linux-app test counterpart, state_machine.test.c.
package mission

import (
	"fmt"
	"strconv"
	"strings"
)

// State is one life-cycle stage of the mission. The zero value is Config.
type State int

const (
	Config State = iota
	Start
	Deploy
	RecordDiving
	RecordSurface
	BrnOn
	Retrieve
	Shutdown
	Unknown
)

var stateNames = [...]string{
	Config:        "CONFIG",
	Start:         "START",
	Deploy:        "DEPLOY",
	RecordDiving:  "RECORD_DIVING",
	RecordSurface: "RECORD_SURFACE",
	BrnOn:         "BRN_ON",
	Retrieve:      "RETRIEVE",
	Shutdown:      "SHUTDOWN",
	Unknown:       "UNKNOWN",
}

// String renders the mission-state name, matching the firmware's
// missionstate_name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// ParseState parses a mission-state token, by name (case-sensitive, the
// original accepts exact names only) or by its numeric ordinal, tolerating
// leading whitespace. It returns Unknown for anything it cannot parse. rest
// is the unconsumed remainder of s after the first whitespace-delimited
// token, mirroring strtomissionstate's end-pointer behavior so callers can
// parse a sequence of tokens from one line.
func ParseState(s string) (state State, rest string) {
	trimmed := strings.TrimLeft(s, " \t")
	if trimmed == "" {
		return Unknown, ""
	}

	token := trimmed
	rest = ""
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		token = trimmed[:idx]
		rest = trimmed[idx+1:]
	}

	for i, name := range stateNames {
		if name == token {
			return State(i), rest
		}
	}

	if n, err := strconv.Atoi(token); err == nil {
		if n >= 0 && n < len(stateNames) {
			return State(n), rest
		}
	}

	return Unknown, rest
}

// Valid reports whether s is one of the defined, non-Unknown states.
func (s State) Valid() bool {
	return s >= Config && s <= Shutdown
}

// Terminal reports whether the state is a terminal state of the FSM.
func (s State) Terminal() bool {
	return s == Shutdown
}

var _ fmt.Stringer = State(0)
