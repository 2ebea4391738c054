// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package eventlog is the structured event sink the supervisor core
// reports through. Components are handed a Sink; none of them log
// directly.
package eventlog

import (
	"fmt"
	"sync"
)

// Kind classifies an event.
type Kind string

const (
	Malformed    Kind = "malformed"
	InvalidState Kind = "invalid-state"
	Transport    Kind = "transport"
	Watchdog     Kind = "watchdog"
	State        Kind = "state"
	Command      Kind = "command"
	Config       Kind = "config"
	Report       Kind = "report"
)

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Event(kind Kind, text string)
}

// Eventf formats text and sends it to sink.
func Eventf(sink Sink, kind Kind, format string, args ...interface{}) {
	sink.Event(kind, fmt.Sprintf(format, args...))
}

type discard struct{}

func (discard) Event(Kind, string) {}

// Discard drops every event.
var Discard Sink = discard{}

// Entry is one recorded event.
type Entry struct {
	Kind Kind
	Text string
}

// Recorder keeps events in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Event(kind Kind, text string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Kind: kind, Text: text})
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Event(kind Kind, text string) {
	for _, s := range m {
		s.Event(kind, text)
	}
}
