// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poll owns the link to the dome controller. It requests basic,
// environment and shaft status in turn on a fixed cadence, routes replies
// into a device.Store and tracks whether the device is answering.
//
// Requests are fire-and-forget. A missing reply is only noticed through
// snapshot staleness and the watchdog.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

// OverflowLimit is the most bytes kept waiting for a terminator before
// the pending buffer is treated as desynchronized.
const OverflowLimit = 4 * telegram.MaxFrameSize

const sendQueueSize = 16

// Connectivity is the scheduler's view of the device.
type Connectivity int

const (
	Detached    Connectivity = iota // no open transport
	Unreachable                     // transport open, watchdog expired
	Online
)

func (c Connectivity) String() string {
	switch c {
	case Detached:
		return "detached"
	case Unreachable:
		return "unreachable"
	case Online:
		return "online"
	default:
		return "unknown"
	}
}

// Frame is handed to the observer for every frame sent or received.
type Frame struct {
	At       time.Time
	Outgoing bool
	Raw      []byte
	Telegram telegram.Telegram // zero if Err is a decode error
	Kind     device.Kind
	Err      error
}

// Options are the collaborators of a Scheduler. Zero values get defaults.
type Options struct {
	Open     transport.Opener
	Store    *device.Store
	Sink     eventlog.Sink
	Now      func() time.Time
	Observer func(Frame) // called from the scheduler goroutine

	// PortPresent gates serial reopen attempts; defaults to transport.PortPresent.
	PortPresent func(name string) (bool, error)
}

// Scheduler polls one device. Only its Run goroutine touches the link.
type Scheduler struct {
	open        transport.Opener
	store       *device.Store
	sink        eventlog.Sink
	now         func() time.Time
	observer    func(Frame)
	portPresent func(string) (bool, error)
	stats       *counters

	sendq chan telegram.Message
	wake  chan struct{}

	mu           sync.RWMutex
	cfg          Config
	pending      *Config
	connectivity Connectivity
	running      bool
}

type chunk struct {
	gen  uint64
	data []byte
	err  error
}

// New creates a scheduler. cfg must be valid.
func New(cfg Config, opts Options) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		open:        opts.Open,
		store:       opts.Store,
		sink:        opts.Sink,
		now:         opts.Now,
		observer:    opts.Observer,
		portPresent: opts.PortPresent,
		sendq:       make(chan telegram.Message, sendQueueSize),
		wake:        make(chan struct{}, 1),
		cfg:         cfg,
	}
	if s.open == nil {
		s.open = transport.Open
	}
	if s.store == nil {
		s.store = device.NewStore()
	}
	if s.sink == nil {
		s.sink = eventlog.Discard
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.portPresent == nil {
		s.portPresent = transport.PortPresent
	}
	s.stats = newCounters(s.now())
	return s, nil
}

func (s *Scheduler) Store() *device.Store { return s.store }

func (s *Scheduler) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Scheduler) Connectivity() Connectivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectivity
}

// Statistics returns a copy of the counters with rates as of now.
func (s *Scheduler) Statistics() Statistics {
	return s.stats.snapshot(s.now())
}

func (s *Scheduler) ResetStatistics() {
	s.stats.reset(s.now())
}

// Reconfigure switches to cfg. The current link is closed, the watchdog
// restarted and any half-received frame discarded before the new one is
// opened. An invalid cfg is rejected and the current one kept.
func (s *Scheduler) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = &cfg
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Send queues m for the device. It is written by the scheduler goroutine
// between polls and dropped if no link is open by then.
func (s *Scheduler) Send(m telegram.Message) error {
	select {
	case s.sendq <- m:
		return nil
	default:
		return errors.Errorf("send queue full, dropping %s", m.Label())
	}
}

// Run polls until ctx is done. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	l := &loop{
		Scheduler: s,
		cfg:       s.Config(),
		asm:       telegram.NewAssembler(),
		reads:     make(chan chunk, 16),
	}
	defer func() {
		l.detach()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return l.run(ctx)
}

// loop holds the state only the Run goroutine touches.
type loop struct {
	*Scheduler

	cfg     Config
	conn    transport.Connection
	gen     uint64
	asm     *telegram.Assembler
	reads   chan chunk
	next    int
	backoff time.Duration

	// answered is set by the first decode on the current link
	answered bool
}

func (l *loop) run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	rescan := time.NewTimer(0)
	defer rescan.Stop()
	l.backoff = l.cfg.RescanMin

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-rescan.C:
			if l.conn != nil {
				continue
			}
			if err := l.connect(ctx); err != nil {
				eventlog.Eventf(l.sink, eventlog.Transport, "%s unavailable, retrying in %s: %v", l.cfg.Endpoint, l.backoff, err)
				rescan.Reset(l.backoff)
				l.backoff *= 2
				if l.backoff > l.cfg.RescanMax {
					l.backoff = l.cfg.RescanMax
				}
			}

		case c := <-l.reads:
			if c.gen != l.gen || l.conn == nil {
				continue // from a link already closed
			}
			if c.err != nil {
				eventlog.Eventf(l.sink, eventlog.Transport, "%s lost: %v", l.cfg.Endpoint, c.err)
				l.detach()
				rescan.Reset(l.backoff)
				continue
			}
			l.receive(c.data)

		case <-ticker.C:
			if l.conn != nil {
				m := l.cfg.requests()[l.next]
				l.next = (l.next + 1) % len(l.cfg.requests())
				if !l.write(m) {
					rescan.Reset(l.backoff)
				}
			}
			l.updateConnectivity()

		case m := <-l.sendq:
			if l.conn == nil {
				eventlog.Eventf(l.sink, eventlog.Command, "%s dropped, no link", m.Label())
				continue
			}
			if !l.write(m) {
				rescan.Reset(l.backoff)
			}

		case <-l.wake:
			l.mu.Lock()
			next := l.pending
			l.pending = nil
			if next != nil {
				l.cfg = *next
				l.Scheduler.cfg = *next
			}
			l.mu.Unlock()
			if next == nil {
				continue
			}
			l.detach()
			l.next = 0
			l.backoff = l.cfg.RescanMin
			ticker.Reset(l.cfg.Interval)
			eventlog.Eventf(l.sink, eventlog.Config, "link reconfigured to %s", l.cfg.Endpoint)
			if !rescan.Stop() {
				select {
				case <-rescan.C:
				default:
				}
			}
			rescan.Reset(0)
		}
	}
}

// connect opens the configured endpoint and starts its reader.
func (l *loop) connect(ctx context.Context) error {
	if l.cfg.Endpoint.IsSerial() {
		present, err := l.portPresent(l.cfg.Endpoint.Port)
		if err != nil {
			return errors.Trace(err)
		}
		if !present {
			return errors.NotFoundf("serial port %s", l.cfg.Endpoint.Port)
		}
	}

	conn, err := l.open(ctx, l.cfg.Endpoint)
	if err != nil {
		return errors.Trace(err)
	}

	l.conn = conn
	l.gen++
	l.answered = false
	l.asm.Reset()
	l.store.ResetWatchdog(l.now())
	l.backoff = l.cfg.RescanMin
	l.stats.update(l.now(), func(s *Statistics) { s.Reconnects++ })
	eventlog.Eventf(l.sink, eventlog.Transport, "connected to %s", l.cfg.Endpoint)
	l.setConnectivity(Unreachable)

	go l.reader(ctx, conn, l.gen)
	return nil
}

func (l *loop) reader(ctx context.Context, conn transport.Connection, gen uint64) {
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		var c chunk
		switch {
		case err != nil:
			c = chunk{gen: gen, err: err}
		case n > 0:
			c = chunk{gen: gen, data: append([]byte(nil), buf[:n]...)}
		default:
			continue
		}
		select {
		case l.reads <- c:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// detach closes the link, drops any partial frame and starts a fresh
// watchdog window so bytes from different links are never joined.
func (l *loop) detach() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.gen++
	l.answered = false
	l.asm = telegram.NewAssembler()
	l.store.ResetWatchdog(l.now())
	l.setConnectivity(Detached)
}

func (l *loop) write(m telegram.Message) bool {
	frame, err := m.Encode(l.cfg.Address)
	if err != nil {
		// only reachable through a programming error
		eventlog.Eventf(l.sink, eventlog.Transport, "encode %s: %v", m.Label(), err)
		return true
	}

	now := l.now()
	if _, err := l.conn.Write(frame); err != nil {
		l.stats.update(now, func(s *Statistics) { s.WriteErrors++ })
		eventlog.Eventf(l.sink, eventlog.Transport, "write %s to %s: %v", m.Label(), l.cfg.Endpoint, err)
		l.detach()
		return false
	}

	l.stats.update(now, func(s *Statistics) {
		if m.IsCommand() {
			s.Commands++
		} else {
			s.Requests++
		}
	})
	if m.IsCommand() {
		eventlog.Eventf(l.sink, eventlog.Command, "sent %s", m.Label())
	}
	l.observe(Frame{At: now, Outgoing: true, Raw: frame, Telegram: m.Telegram(l.cfg.Address), Kind: device.KindOf(m.Payload())})
	return true
}

// receive feeds bytes from the link through the assembler, codec and
// decoder. Nothing here is fatal; bad frames are counted and dropped.
func (l *loop) receive(data []byte) {
	for _, raw := range l.asm.Feed(data) {
		now := l.now()
		l.stats.update(now, func(s *Statistics) { s.Frames++ })

		tg, err := telegram.Decode(raw)
		if err != nil {
			l.stats.update(now, func(s *Statistics) { s.Malformed++ })
			l.sink.Event(eventlog.Malformed, errors.Cause(err).Error())
			l.observe(Frame{At: now, Raw: raw, Err: err})
			continue
		}

		if !tg.FromSlave() {
			// our own request echoed on the half-duplex line
			l.stats.update(now, func(s *Statistics) { s.Ignored++ })
			continue
		}
		if tg.Address != l.cfg.Address {
			l.stats.update(now, func(s *Statistics) { s.Ignored++ })
			eventlog.Eventf(l.sink, eventlog.Malformed, "reply from address %02X, expected %02X", tg.Address, l.cfg.Address)
			l.observe(Frame{At: now, Raw: raw, Telegram: tg})
			continue
		}

		kind, err := l.store.Decode(tg.Payload, now)
		if err != nil {
			l.stats.update(now, func(s *Statistics) { s.InvalidState++ })
			l.asm.Reset()
			l.sink.Event(eventlog.InvalidState, err.Error())
			l.observe(Frame{At: now, Raw: raw, Telegram: tg, Kind: kind, Err: err})
			continue
		}

		l.stats.decoded(now, kind)
		l.answered = true
		l.setConnectivity(Online)
		l.observe(Frame{At: now, Raw: raw, Telegram: tg, Kind: kind})
	}

	if l.asm.Pending() > OverflowLimit {
		l.stats.update(l.now(), func(s *Statistics) { s.Overflows++ })
		eventlog.Eventf(l.sink, eventlog.InvalidState, "%d bytes without terminator, resynchronizing", l.asm.Pending())
		l.asm.Reset()
	}
}

func (l *loop) updateConnectivity() {
	switch {
	case l.conn == nil:
		l.setConnectivity(Detached)
	case !l.answered || l.store.Expired(l.now(), l.cfg.Watchdog):
		l.setConnectivity(Unreachable)
	default:
		l.setConnectivity(Online)
	}
}

func (l *loop) setConnectivity(c Connectivity) {
	l.mu.Lock()
	prev := l.connectivity
	l.connectivity = c
	l.mu.Unlock()

	if prev == c {
		return
	}
	switch {
	case c == Unreachable && prev == Online:
		eventlog.Eventf(l.sink, eventlog.Watchdog, "no valid reply for %s, device unreachable", l.cfg.Watchdog)
	case c == Online && prev == Unreachable:
		eventlog.Eventf(l.sink, eventlog.Watchdog, "device answering again")
	case c == Detached:
		eventlog.Eventf(l.sink, eventlog.Transport, "link detached")
	}
}

func (l *loop) observe(f Frame) {
	if l.observer != nil {
		l.observer(f)
	}
}
