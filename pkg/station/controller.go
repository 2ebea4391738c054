// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package station decides, once per control cycle, which commands to send
// to the dome and what state the station is in.
package station

import (
	"sync"
	"time"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/telegram"
)

// Input is everything one evaluation looks at.
type Input struct {
	Basic      device.BasicStatus
	BasicValid bool

	SunAltitude       float64
	DarknessThreshold float64

	Humidity      float64
	HumidityKnown bool
	Limits        HumidityLimits

	Manual         bool
	SafetyOverride bool
}

// Input assembles a controller input from the latest snapshots as of now.
func (v Values) Input(basic device.BasicStatus, env device.EnvStatus, sunAltitude float64, now time.Time) Input {
	in := Input{
		Basic:             basic,
		BasicValid:        basic.ValidAt(now),
		SunAltitude:       sunAltitude,
		DarknessThreshold: v.DarknessThreshold,
		Limits:            v.Humidity,
		Manual:            v.Manual,
		SafetyOverride:    v.SafetyOverride,
	}
	if env.ValidAt(now) {
		in.Humidity = env.Humidity()
		in.HumidityKnown = true
	}
	return in
}

// Dark reports whether the sun is below the darkness threshold.
func (in Input) Dark() bool {
	return in.SunAltitude < in.DarknessThreshold
}

// Decision is the result of one evaluation.
type Decision struct {
	Commands []telegram.Message
	State    State
}

func (d *Decision) issue(m telegram.Message) {
	for _, c := range d.Commands {
		if c == m {
			return
		}
	}
	d.Commands = append(d.Commands, m)
}

// Evaluate is the decision table. It is pure: equal inputs give equal
// decisions. Commands are deduplicated and kept in issue order.
func Evaluate(in Input) Decision {
	if !in.BasicValid {
		return Decision{State: DomeUnreachable}
	}

	var d Decision
	b := in.Basic
	dark := in.Dark()

	// Emergency checks, independent of everything below
	if !dark && !in.SafetyOverride {
		if b.DomeOpen() {
			d.issue(telegram.CommandCloseCover)
		}
		if b.Intensifier() {
			d.issue(telegram.CommandIntensifierOff)
		}
	}

	if b.DomeOpen() && b.DomeClosed() {
		d.issue(telegram.CommandCloseCover)
		d.issue(telegram.CommandIntensifierOff)
		d.State = Inconsistent
		return d
	}

	if in.Manual {
		d.State = Manual
		return d
	}

	if !dark {
		d.State = Daylight
		return d
	}

	switch {
	case b.DomeClosed():
		// an unknown humidity blocks opening like a high one
		if b.Rain() || !in.HumidityKnown || in.Humidity >= in.Limits.Lower {
			d.State = RainOrHumid
		} else {
			d.issue(telegram.CommandOpenCover)
			d.State = NotObserving
		}
		if b.Intensifier() {
			d.issue(telegram.CommandIntensifierOff)
			d.State = NotObserving
		}

	case b.DomeOpen():
		d.State = NotObserving
		if !b.Intensifier() {
			d.issue(telegram.CommandIntensifierOn)
		} else {
			d.State = Observing
		}
		if !b.Fan() {
			d.issue(telegram.CommandFanOn)
		}
		if in.HumidityKnown && in.Humidity >= in.Limits.Upper {
			d.issue(telegram.CommandCloseCover)
			d.State = RainOrHumid
		}

	default:
		d.State = NotObserving
	}

	return d
}

// Controller owns the current station state.
type Controller struct {
	mu    sync.RWMutex
	state State
}

// NewController starts in DomeUnreachable until the first evaluation.
func NewController() *Controller {
	return &Controller{state: DomeUnreachable}
}

// Step evaluates in, stores the new state and reports whether it changed.
func (c *Controller) Step(in Input) (Decision, bool) {
	d := Evaluate(in)

	c.mu.Lock()
	changed := c.state != d.State
	c.state = d.State
	c.mu.Unlock()

	return d, changed
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
