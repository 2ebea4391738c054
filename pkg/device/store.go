// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/telegram"
)

// Store holds the most recent snapshot of each kind and the time of the
// last successful decode. A snapshot is only ever replaced whole.
type Store struct {
	mu          sync.RWMutex
	basic       BasicStatus
	env         EnvStatus
	shaft       ShaftStatus
	lastSuccess time.Time
}

func NewStore() *Store {
	return &Store{}
}

// Decode dispatches payload on its first byte, stores the resulting
// snapshot and marks the watchdog. Errors are InvalidState.
func (s *Store) Decode(payload []byte, at time.Time) (Kind, error) {
	kind, err := s.decode(payload, at)
	if err != nil {
		return kind, errors.Annotatef(err, "payload %s", telegram.FormatHex(payload))
	}
	s.Touch(at)
	return kind, nil
}

func (s *Store) decode(payload []byte, at time.Time) (Kind, error) {
	kind := KindOf(payload)
	switch kind {
	case KindBasic:
		b, err := DecodeBasic(payload, at)
		if err != nil {
			return kind, err
		}
		s.PutBasic(b)
	case KindEnv:
		e, err := DecodeEnv(payload, at)
		if err != nil {
			return kind, err
		}
		s.PutEnv(e)
	case KindShaft:
		decode := DecodeShaft
		if payload[0] == telegram.TagShaftLegacy {
			decode = DecodeShaftLegacy
		}
		z, err := decode(payload, at)
		if err != nil {
			return kind, err
		}
		s.PutShaft(z)
	default:
		if len(payload) == 0 {
			return kind, invalidf(kind, "empty payload")
		}
		return kind, invalidf(kind, "tag 0x%02X", payload[0])
	}
	return kind, nil
}

func (s *Store) PutBasic(b BasicStatus) {
	s.mu.Lock()
	s.basic = b
	s.mu.Unlock()
}

func (s *Store) PutEnv(e EnvStatus) {
	s.mu.Lock()
	s.env = e
	s.mu.Unlock()
}

func (s *Store) PutShaft(z ShaftStatus) {
	s.mu.Lock()
	s.shaft = z
	s.mu.Unlock()
}

func (s *Store) Basic() BasicStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basic
}

func (s *Store) Env() EnvStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

func (s *Store) Shaft() ShaftStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shaft
}

// Touch records a successful decode at t.
func (s *Store) Touch(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastSuccess) {
		s.lastSuccess = t
	}
	s.mu.Unlock()
}

// ResetWatchdog starts a fresh watchdog window at t, for a newly opened link.
func (s *Store) ResetWatchdog(t time.Time) {
	s.mu.Lock()
	s.lastSuccess = t
	s.mu.Unlock()
}

func (s *Store) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccess
}

// Expired reports whether nothing was decoded within window before now.
func (s *Store) Expired(now time.Time, window time.Duration) bool {
	last := s.LastSuccess()
	return last.IsZero() || now.Sub(last) >= window
}
