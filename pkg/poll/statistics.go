// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/cupola/pkg/device"
)

// Statistics tracks link traffic and error counts
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Frames       uint64
	Malformed    uint64
	InvalidState uint64
	Ignored      uint64
	Overflows    uint64
	Basic        uint64
	Env          uint64
	Shaft        uint64
	Requests     uint64
	Commands     uint64
	WriteErrors  uint64
	Reconnects   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Decoded returns the number of frames that produced a snapshot.
func (s Statistics) Decoded() uint64 {
	return s.Basic + s.Env + s.Shaft
}

// Errors returns the number of frames that were discarded as bad.
func (s Statistics) Errors() uint64 {
	return s.Malformed + s.InvalidState + s.Overflows
}

// CalculateRates calculates frame and error rates as of now
func (s *Statistics) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var validPercent, errorPercent float64
	if s.Frames > 0 {
		validPercent = float64(s.Decoded()) * 100.0 / float64(s.Frames)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.Frames)
	}

	elapsed := s.LastUpdateTime.Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames:          %8d\n", s.Frames)
	result += fmt.Sprintf("Decoded:         %8d (%.1f%%)\n", s.Decoded(), validPercent)
	result += fmt.Sprintf("  Basic:            %5d\n", s.Basic)
	result += fmt.Sprintf("  Env:              %5d\n", s.Env)
	result += fmt.Sprintf("  Shaft:            %5d\n", s.Shaft)
	if s.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors(), errorPercent)
		if s.Malformed > 0 {
			result += fmt.Sprintf("  Malformed:        %5d\n", s.Malformed)
		}
		if s.InvalidState > 0 {
			result += fmt.Sprintf("  Invalid State:    %5d\n", s.InvalidState)
		}
		if s.Overflows > 0 {
			result += fmt.Sprintf("  Overflows:        %5d\n", s.Overflows)
		}
	}
	if s.Ignored > 0 {
		result += fmt.Sprintf("Ignored:         %8d\n", s.Ignored)
	}
	result += fmt.Sprintf("Requests:        %8d\n", s.Requests)
	result += fmt.Sprintf("Commands:        %8d\n", s.Commands)
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", s.Reconnects)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// counters is the scheduler-owned, lock-protected Statistics.
type counters struct {
	mu sync.Mutex
	s  Statistics
}

func newCounters(now time.Time) *counters {
	return &counters{s: Statistics{StartTime: now, LastUpdateTime: now}}
}

func (c *counters) update(now time.Time, f func(s *Statistics)) {
	c.mu.Lock()
	f(&c.s)
	c.s.LastUpdateTime = now
	c.mu.Unlock()
}

func (c *counters) decoded(now time.Time, kind device.Kind) {
	c.update(now, func(s *Statistics) {
		switch kind {
		case device.KindBasic:
			s.Basic++
		case device.KindEnv:
			s.Env++
		case device.KindShaft:
			s.Shaft++
		}
	})
}

func (c *counters) snapshot(now time.Time) Statistics {
	c.mu.Lock()
	s := c.s
	c.mu.Unlock()
	s.CalculateRates(now)
	return s
}

func (c *counters) reset(now time.Time) {
	c.mu.Lock()
	c.s = Statistics{StartTime: now, LastUpdateTime: now}
	c.mu.Unlock()
}
