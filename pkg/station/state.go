// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

// State is the operating state of the station.
type State uint8

const (
	DomeUnreachable State = iota
	Daylight
	Observing
	NotObserving
	Manual
	RainOrHumid
	Inconsistent
	NoMasterPower // reserved, not produced by the controller
)

var states = [...]struct {
	code    byte
	name    string
	tooltip string
}{
	DomeUnreachable: {'U', "dome-unreachable", "Dome controller is not responding"},
	Daylight:        {'D', "daylight", "Sun is too high, waiting for darkness"},
	Observing:       {'O', "observing", "Cover open, intensifier on, observing"},
	NotObserving:    {'N', "not-observing", "Dark, but not observing"},
	Manual:          {'M', "manual", "Under manual control"},
	RainOrHumid:     {'R', "rain-or-humid", "Cover kept closed due to rain or humidity"},
	Inconsistent:    {'I', "inconsistent", "Cover sensors report both open and closed"},
	NoMasterPower:   {'P', "no-master-power", "Master power is off"},
}

// Code is the stable one-character code used in external reports.
func (s State) Code() byte {
	if int(s) >= len(states) {
		return '?'
	}
	return states[s].code
}

func (s State) Tooltip() string {
	if int(s) >= len(states) {
		return "Unknown state"
	}
	return states[s].tooltip
}

func (s State) String() string {
	if int(s) >= len(states) {
		return "unknown"
	}
	return states[s].name
}

