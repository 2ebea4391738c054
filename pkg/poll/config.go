// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"time"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

// Defaults
const (
	DefaultInterval  = 300 * time.Millisecond
	DefaultWatchdog  = 2 * time.Second
	DefaultRescanMin = 1 * time.Second
	DefaultRescanMax = 30 * time.Second
)

// Config is everything the scheduler needs to talk to one device.
type Config struct {
	Endpoint transport.Endpoint
	Address  byte

	Interval  time.Duration // between requests
	Watchdog  time.Duration // no decode for this long means unreachable
	RescanMin time.Duration
	RescanMax time.Duration

	// LegacyShaft polls the shaft with the older 'W' request.
	LegacyShaft bool
}

func DefaultConfig() Config {
	return Config{
		Address:   telegram.DefaultAddress,
		Interval:  DefaultInterval,
		Watchdog:  DefaultWatchdog,
		RescanMin: DefaultRescanMin,
		RescanMax: DefaultRescanMax,
	}
}

// Validate rejects timings under which a snapshot could go stale between
// two polls of its kind.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return station.ConfigErrorf("poll_interval", "must be positive, got %s", c.Interval)
	}
	if cycle := c.Interval * time.Duration(len(c.requests())); cycle >= device.StaleAfter {
		return station.ConfigErrorf("poll_interval", "%s round-robin cycle of %s is not below the %s staleness window",
			c.Interval, cycle, device.StaleAfter)
	}
	if c.Watchdog < c.Interval {
		return station.ConfigErrorf("watchdog", "%s is shorter than the poll interval %s", c.Watchdog, c.Interval)
	}
	if c.RescanMin <= 0 {
		return station.ConfigErrorf("rescan_min", "must be positive, got %s", c.RescanMin)
	}
	if c.RescanMax < c.RescanMin {
		return station.ConfigErrorf("rescan_max", "%s is below rescan_min %s", c.RescanMax, c.RescanMin)
	}
	return nil
}

// requests is the round-robin order.
func (c Config) requests() []telegram.Message {
	shaft := telegram.RequestShaft
	if c.LegacyShaft {
		shaft = telegram.RequestShaftLegacy
	}
	return []telegram.Message{telegram.RequestBasic, telegram.RequestEnv, shaft}
}
