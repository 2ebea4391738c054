// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import "time"

// StaleAfter is the age at which a snapshot stops being valid.
const StaleAfter = 2 * time.Second

// Snapshot holds the capture time shared by all snapshot kinds.
type Snapshot struct {
	captured time.Time
}

func (s Snapshot) CapturedAt() time.Time { return s.captured }

// Age returns how long ago the snapshot was captured.
func (s Snapshot) Age() time.Duration { return s.AgeAt(time.Now()) }

func (s Snapshot) AgeAt(now time.Time) time.Duration { return now.Sub(s.captured) }

// IsValid reports whether the snapshot is younger than StaleAfter right now.
func (s Snapshot) IsValid() bool { return s.ValidAt(time.Now()) }

// ValidAt reports validity as of now. A zero snapshot is never valid.
func (s Snapshot) ValidAt(now time.Time) bool {
	return !s.captured.IsZero() && s.AgeAt(now) < StaleAfter
}
