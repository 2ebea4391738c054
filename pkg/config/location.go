// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/cupola/pkg/station"
)

const DefaultLocationFile = "/etc/cupola/location.yaml"

// Ondrejov observatory
const (
	defaultLatitude  = 49.9106
	defaultLongitude = 14.7828
	defaultAltitude  = 528
)

// Location is the station location file. It is written by whoever
// surveyed the site, so the timestamp records when.
type Location struct {
	Latitude  float64   `yaml:"latitude"`
	Longitude float64   `yaml:"longitude"`
	Altitude  float64   `yaml:"altitude"`
	Timestamp time.Time `yaml:"timestamp,omitempty"`
}

func DefaultLocation() Location {
	return Location{
		Latitude:  defaultLatitude,
		Longitude: defaultLongitude,
		Altitude:  defaultAltitude,
	}
}

func (l Location) IsEmpty() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

func (l Location) Position() station.Position {
	return station.Position{Latitude: l.Latitude, Longitude: l.Longitude, Altitude: l.Altitude}
}

func (l Location) Validate() error {
	return l.Position().Validate()
}

// ParseLocation decodes YAML. A (0,0) location is treated as unset and
// replaced by the default site.
func ParseLocation(b []byte) (Location, error) {
	var l Location
	if err := yaml.Unmarshal(b, &l); err != nil {
		return Location{}, errors.Annotate(err, "location: yaml")
	}
	if l.IsEmpty() {
		return DefaultLocation(), nil
	}
	return l, nil
}

// LoadLocation reads path. A missing file yields the default site.
func LoadLocation(path string) (Location, error) {
	if path == "" {
		return DefaultLocation(), nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultLocation(), nil
	}
	if err != nil {
		return Location{}, errors.Trace(err)
	}
	return ParseLocation(b)
}

// Save writes the location as YAML.
func (l Location) Save(path string) error {
	b, err := yaml.Marshal(l)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path, b, 0o644))
}
