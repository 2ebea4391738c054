// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config reads the supervisor configuration: an HCL main file, a
// YAML station location file and secrets from the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/transport"
)

const (
	DefaultPath            = "/etc/cupola/cupola.hcl"
	DefaultControlInterval = time.Second
	DefaultTopic           = "cupola"
	DefaultClientID        = "cupola"
)

// HCL v1 cannot decode durations, so timings are plain milliseconds.
type Config struct {
	Device struct {
		Port          string `hcl:"port"`
		Baud          int    `hcl:"baud"`
		URL           string `hcl:"url"`
		Username      string `hcl:"username"`
		SkipTLSVerify bool   `hcl:"no_ssl_verify"`
		Address       int    `hcl:"address"`
		LegacyShaft   bool   `hcl:"legacy_shaft"`

		Password string `hcl:"-"` // CUPOLA_WS_PASSWORD
	} `hcl:"device"`

	Poll struct {
		IntervalMs  int `hcl:"interval_ms"`
		WatchdogMs  int `hcl:"watchdog_ms"`
		RescanMinMs int `hcl:"rescan_min_ms"`
		RescanMaxMs int `hcl:"rescan_max_ms"`
	} `hcl:"poll"`

	Control struct {
		IntervalMs        int     `hcl:"interval_ms"`
		DarknessThreshold float64 `hcl:"darkness_threshold"`
		HumidityLower     float64 `hcl:"humidity_lower"`
		HumidityUpper     float64 `hcl:"humidity_upper"`
		Manual            bool    `hcl:"manual"`
		SafetyOverride    bool    `hcl:"safety_override"`
		Systemd           bool    `hcl:"systemd"`
	} `hcl:"control"`

	Log struct {
		Level string `hcl:"level"`
		JSON  bool   `hcl:"json"`
	} `hcl:"log"`

	MQTT struct {
		Enabled  bool   `hcl:"enable"`
		Broker   string `hcl:"broker"`
		ClientID string `hcl:"client_id"`
		Topic    string `hcl:"topic"`
		Username string `hcl:"username"`
		QoS      int    `hcl:"qos"`

		Password string `hcl:"-"` // CUPOLA_MQTT_PASSWORD
	} `hcl:"mqtt"`

	LocationFile string `hcl:"location_file"`

	Location Location `hcl:"-"`
	Path     string   `hcl:"-"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	c := new(Config)
	c.Device.Baud = transport.DefaultBaud
	c.Device.Address = int(poll.DefaultConfig().Address)
	c.Poll.IntervalMs = millis(poll.DefaultInterval)
	c.Poll.WatchdogMs = millis(poll.DefaultWatchdog)
	c.Poll.RescanMinMs = millis(poll.DefaultRescanMin)
	c.Poll.RescanMaxMs = millis(poll.DefaultRescanMax)
	c.Control.IntervalMs = millis(DefaultControlInterval)
	c.Control.DarknessThreshold = station.DefaultDarknessThreshold
	c.Control.HumidityLower = station.DefaultHumidityLower
	c.Control.HumidityUpper = station.DefaultHumidityUpper
	c.Log.Level = "info"
	c.MQTT.ClientID = DefaultClientID
	c.MQTT.Topic = DefaultTopic
	c.LocationFile = DefaultLocationFile
	c.Location = DefaultLocation()
	return c
}

// Parse decodes an HCL document over the defaults. Keys absent from b keep
// their default value. The location file is not read.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "config: hcl")
	}
	return c, nil
}

// Load reads path, the location file it names and the environment, then
// validates the result. A missing main or location file means defaults.
func Load(path string) (*Config, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	c := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if c, err = Parse(b); err != nil {
			return nil, errors.Annotatef(err, "config: %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Trace(err)
	}
	c.Path = path

	if c.Location, err = LoadLocation(c.LocationFile); err != nil {
		return nil, errors.Annotatef(err, "config: location_file=%s", c.LocationFile)
	}
	c.ApplyEnv()

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Device.Address < 0 || c.Device.Address > 0xff {
		return station.ConfigErrorf("address", "%d outside 0..255", c.Device.Address)
	}
	if c.Device.Port != "" && c.Device.Baud <= 0 {
		return station.ConfigErrorf("baud", "must be positive, got %d", c.Device.Baud)
	}
	if c.Control.IntervalMs <= 0 {
		return station.ConfigErrorf("control.interval_ms", "must be positive, got %d", c.Control.IntervalMs)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return station.ConfigErrorf("mqtt.broker", "required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return station.ConfigErrorf("mqtt.qos", "%d outside 0..2", c.MQTT.QoS)
	}
	if err := c.PollConfig().Validate(); err != nil {
		return err
	}
	v := c.StationValues()
	if err := station.ValidateDarknessThreshold(v.DarknessThreshold); err != nil {
		return err
	}
	if err := v.Humidity.Validate(); err != nil {
		return err
	}
	return v.Position.Validate()
}

func (c *Config) Endpoint() transport.Endpoint {
	return transport.Endpoint{
		Port:          c.Device.Port,
		Baud:          c.Device.Baud,
		URL:           c.Device.URL,
		Username:      c.Device.Username,
		Password:      c.Device.Password,
		SkipTLSVerify: c.Device.SkipTLSVerify,
	}
}

func (c *Config) PollConfig() poll.Config {
	return poll.Config{
		Endpoint:    c.Endpoint(),
		Address:     byte(c.Device.Address),
		Interval:    duration(c.Poll.IntervalMs),
		Watchdog:    duration(c.Poll.WatchdogMs),
		RescanMin:   duration(c.Poll.RescanMinMs),
		RescanMax:   duration(c.Poll.RescanMaxMs),
		LegacyShaft: c.Device.LegacyShaft,
	}
}

func (c *Config) StationValues() station.Values {
	return station.Values{
		DarknessThreshold: c.Control.DarknessThreshold,
		Humidity: station.HumidityLimits{
			Lower: c.Control.HumidityLower,
			Upper: c.Control.HumidityUpper,
		},
		Manual:         c.Control.Manual,
		SafetyOverride: c.Control.SafetyOverride,
		Position:       c.Location.Position(),
	}
}

func (c *Config) ControlInterval() time.Duration {
	return duration(c.Control.IntervalMs)
}

func millis(d time.Duration) int { return int(d / time.Millisecond) }

func duration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
