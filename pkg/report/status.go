// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package report publishes the station status to the outside world: an
// MQTT broker and the systemd service manager.
package report

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/station"
)

// Status is one control cycle as seen from outside. Map keys are small
// integers to keep the CBOR record compact on the wire.
type Status struct {
	TimeMs       int64   `cbor:"1,keyasint"`
	State        string  `cbor:"2,keyasint"` // one-character code
	StateName    string  `cbor:"3,keyasint"`
	Tooltip      string  `cbor:"4,keyasint"`
	Connectivity string  `cbor:"5,keyasint"`
	SunAltitude  float64 `cbor:"6,keyasint"`

	Basic *Basic `cbor:"7,keyasint,omitempty"`
	Env   *Env   `cbor:"8,keyasint,omitempty"`
	Shaft *Shaft `cbor:"9,keyasint,omitempty"`

	Stats Counters `cbor:"10,keyasint"`
}

type Basic struct {
	Status  uint8   `cbor:"1,keyasint"`
	Env     uint8   `cbor:"2,keyasint"`
	Errors  uint8   `cbor:"3,keyasint"`
	Alive   uint32  `cbor:"4,keyasint"`
	AgeSecs float64 `cbor:"5,keyasint"`
}

type Env struct {
	Lens     float64 `cbor:"1,keyasint"`
	CPU      float64 `cbor:"2,keyasint"`
	Ambient  float64 `cbor:"3,keyasint"`
	Humidity float64 `cbor:"4,keyasint"`
	AgeSecs  float64 `cbor:"5,keyasint"`
}

type Shaft struct {
	Position int16   `cbor:"1,keyasint"`
	AgeSecs  float64 `cbor:"2,keyasint"`
}

type Counters struct {
	Frames   uint64 `cbor:"1,keyasint"`
	Decoded  uint64 `cbor:"2,keyasint"`
	Errors   uint64 `cbor:"3,keyasint"`
	Requests uint64 `cbor:"4,keyasint"`
	Commands uint64 `cbor:"5,keyasint"`
}

// NewStatus collects a status record. Snapshots that are not valid at
// now are left out.
func NewStatus(now time.Time, state station.State, conn poll.Connectivity, sunAltitude float64,
	store *device.Store, stats poll.Statistics) Status {
	s := Status{
		TimeMs:       now.UnixMilli(),
		State:        string(state.Code()),
		StateName:    state.String(),
		Tooltip:      state.Tooltip(),
		Connectivity: conn.String(),
		SunAltitude:  sunAltitude,
		Stats: Counters{
			Frames:   stats.Frames,
			Decoded:  stats.Decoded(),
			Errors:   stats.Errors(),
			Requests: stats.Requests,
			Commands: stats.Commands,
		},
	}
	if store == nil {
		return s
	}
	if b := store.Basic(); b.ValidAt(now) {
		s.Basic = &Basic{
			Status:  uint8(b.Status()),
			Env:     uint8(b.Env()),
			Errors:  uint8(b.Errors()),
			Alive:   b.AliveCounter(),
			AgeSecs: b.AgeAt(now).Seconds(),
		}
	}
	if e := store.Env(); e.ValidAt(now) {
		s.Env = &Env{
			Lens:     e.TemperatureLens(),
			CPU:      e.TemperatureCPU(),
			Ambient:  e.TemperatureAmbient(),
			Humidity: e.Humidity(),
			AgeSecs:  e.AgeAt(now).Seconds(),
		}
	}
	if z := store.Shaft(); z.ValidAt(now) {
		s.Shaft = &Shaft{Position: z.Position(), AgeSecs: z.AgeAt(now).Seconds()}
	}
	return s
}

func (s Status) Time() time.Time {
	return time.UnixMilli(s.TimeMs)
}

var encMode cbor.EncMode

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
}

// Encode returns the deterministic CBOR encoding of s.
func (s Status) Encode() ([]byte, error) {
	b, err := encMode.Marshal(s)
	return b, errors.Annotate(err, "report: cbor encode")
}

func DecodeStatus(b []byte) (Status, error) {
	var s Status
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Status{}, errors.Annotate(err, "report: cbor decode")
	}
	return s, nil
}

// Reporter receives the status once per control cycle.
type Reporter interface {
	Report(ctx context.Context, s Status) error
	Close() error
}

// Multi reports to several reporters, returning the first error after
// trying all of them.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, s Status) error {
	var first error
	for _, r := range m {
		if err := r.Report(ctx, s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
