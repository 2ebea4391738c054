// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"math"
	"sync"
)

// Defaults
const (
	DefaultDarknessThreshold = -10.0
	DefaultHumidityLower     = 80.0
	DefaultHumidityUpper     = 90.0
)

// HumidityLimits is the hysteresis band: opening is blocked from Lower,
// an open cover is closed from Upper.
type HumidityLimits struct {
	Lower float64
	Upper float64
}

func (h HumidityLimits) Validate() error {
	if !inRange(h.Lower, 0, 100) {
		return ConfigErrorf("humidity_lower", "%v outside 0..100", h.Lower)
	}
	if !inRange(h.Upper, 0, 100) {
		return ConfigErrorf("humidity_upper", "%v outside 0..100", h.Upper)
	}
	if h.Lower > h.Upper {
		return ConfigErrorf("humidity_lower", "%v above upper limit %v", h.Lower, h.Upper)
	}
	return nil
}

// Position is the geographic location of the station.
type Position struct {
	Latitude  float64
	Longitude float64
	Altitude  float64 // metres
}

func (p Position) Validate() error {
	if !inRange(p.Latitude, -90, 90) {
		return ConfigErrorf("latitude", "%v outside -90..90", p.Latitude)
	}
	if !inRange(p.Longitude, -180, 180) {
		return ConfigErrorf("longitude", "%v outside -180..180", p.Longitude)
	}
	if math.IsNaN(p.Altitude) || math.IsInf(p.Altitude, 0) {
		return ConfigErrorf("altitude", "%v is not a number", p.Altitude)
	}
	return nil
}

// ValidateDarknessThreshold checks a sun altitude threshold in degrees.
func ValidateDarknessThreshold(deg float64) error {
	if !inRange(deg, -90, 90) {
		return ConfigErrorf("darkness_threshold", "%v outside -90..90", deg)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Values is a copy of the settings at one instant.
type Values struct {
	DarknessThreshold float64
	Humidity          HumidityLimits
	Manual            bool
	SafetyOverride    bool
	Position          Position
}

// Settings holds the operator parameters read by the controller each
// cycle. Setters validate and keep the previous value on error.
type Settings struct {
	mu sync.RWMutex
	v  Values
}

func NewSettings() *Settings {
	return &Settings{v: Values{
		DarknessThreshold: DefaultDarknessThreshold,
		Humidity:          HumidityLimits{Lower: DefaultHumidityLower, Upper: DefaultHumidityUpper},
	}}
}

func (s *Settings) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *Settings) SetDarknessThreshold(deg float64) error {
	if err := ValidateDarknessThreshold(deg); err != nil {
		return err
	}
	s.mu.Lock()
	s.v.DarknessThreshold = deg
	s.mu.Unlock()
	return nil
}

func (s *Settings) SetHumidityLimits(h HumidityLimits) error {
	if err := h.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.v.Humidity = h
	s.mu.Unlock()
	return nil
}

func (s *Settings) SetManual(on bool) {
	s.mu.Lock()
	s.v.Manual = on
	s.mu.Unlock()
}

func (s *Settings) SetSafetyOverride(on bool) {
	s.mu.Lock()
	s.v.SafetyOverride = on
	s.mu.Unlock()
}

// Apply validates every field of v before replacing all of them.
func (s *Settings) Apply(v Values) error {
	if err := ValidateDarknessThreshold(v.DarknessThreshold); err != nil {
		return err
	}
	if err := v.Humidity.Validate(); err != nil {
		return err
	}
	if err := v.Position.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	return nil
}
