// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package supervisor runs the two periodic activities of the station: the
// poll scheduler talking to the dome, and the control cycle deciding what
// the dome should do.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/Thermoquad/cupola/pkg/config"
	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/report"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/sun"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

// Options are the collaborators of a Supervisor. Zero values get defaults.
type Options struct {
	Open        transport.Opener
	Sink        eventlog.Sink
	Reporter    report.Reporter
	Sun         sun.AltitudeFunc
	Now         func() time.Time
	Observer    func(poll.Frame)
	PortPresent func(string) (bool, error)

	// DryRun evaluates every cycle but sends no commands.
	DryRun bool
}

// Cycle is the outcome of one control cycle.
type Cycle struct {
	At          time.Time
	SunAltitude float64
	Decision    station.Decision
	Changed     bool
	Status      report.Status
}

type Supervisor struct {
	sched    *poll.Scheduler
	settings *station.Settings
	ctrl     *station.Controller
	sink     eventlog.Sink
	reporter report.Reporter
	sun      sun.AltitudeFunc
	now      func() time.Time
	dryRun   bool
	alive    *alive.Alive

	mu        sync.Mutex
	interval  time.Duration
	last      Cycle
	intervalC chan time.Duration
}

// New builds a supervisor from a validated configuration.
func New(cfg *config.Config, opts Options) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Supervisor{
		settings:  station.NewSettings(),
		ctrl:      station.NewController(),
		sink:      opts.Sink,
		reporter:  opts.Reporter,
		sun:       opts.Sun,
		now:       opts.Now,
		dryRun:    opts.DryRun,
		alive:     alive.NewAlive(),
		interval:  cfg.ControlInterval(),
		intervalC: make(chan time.Duration, 1),
	}
	if s.sink == nil {
		s.sink = eventlog.Discard
	}
	if s.sun == nil {
		s.sun = sun.Altitude
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.settings.Apply(cfg.StationValues()); err != nil {
		return nil, err
	}

	sched, err := poll.New(cfg.PollConfig(), poll.Options{
		Open:        opts.Open,
		Store:       device.NewStore(),
		Sink:        s.sink,
		Now:         s.now,
		Observer:    opts.Observer,
		PortPresent: opts.PortPresent,
	})
	if err != nil {
		return nil, err
	}
	s.sched = sched
	return s, nil
}

func (s *Supervisor) Scheduler() *poll.Scheduler      { return s.sched }
func (s *Supervisor) Settings() *station.Settings     { return s.settings }
func (s *Supervisor) State() station.State            { return s.ctrl.State() }
func (s *Supervisor) Controller() *station.Controller { return s.ctrl }

// Last returns the most recent control cycle.
func (s *Supervisor) Last() Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run starts the scheduler and the control cycle and blocks until ctx is
// done or Stop is called. Reporters are closed on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.alive.Add(2) {
		return errors.New("supervisor already stopped")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer s.alive.Done()
		if err := s.sched.Run(ctx); err != nil && errors.Cause(err) != context.Canceled {
			eventlog.Eventf(s.sink, eventlog.Transport, "scheduler stopped: %v", err)
		}
		s.alive.Stop()
	}()
	go func() {
		defer s.alive.Done()
		s.controlLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-s.alive.StopChan():
	}
	cancel()
	s.alive.Stop()
	s.alive.Wait()

	if s.reporter != nil {
		if err := s.reporter.Close(); err != nil {
			eventlog.Eventf(s.sink, eventlog.Report, "close: %v", err)
		}
	}
	return nil
}

// Stop makes Run return.
func (s *Supervisor) Stop() {
	s.alive.Stop()
}

func (s *Supervisor) controlLoop(ctx context.Context) {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.alive.StopChan():
			return
		case d := <-s.intervalC:
			ticker.Reset(d)
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step runs one control cycle: decide from the latest snapshots, queue the
// resulting commands and report the status.
func (s *Supervisor) Step(ctx context.Context) Cycle {
	now := s.now()
	v := s.settings.Values()
	store := s.sched.Store()

	alt := s.sun(v.Position.Latitude, v.Position.Longitude, now)
	prev := s.ctrl.State()
	d, changed := s.ctrl.Step(v.Input(store.Basic(), store.Env(), alt, now))
	if changed {
		eventlog.Eventf(s.sink, eventlog.State, "%s -> %s: %s", prev, d.State, d.State.Tooltip())
	}

	for _, m := range d.Commands {
		if s.dryRun {
			eventlog.Eventf(s.sink, eventlog.Command, "%s (dry run)", m.Label())
			continue
		}
		if err := s.sched.Send(m); err != nil {
			eventlog.Eventf(s.sink, eventlog.Command, "%v", err)
			continue
		}
		eventlog.Eventf(s.sink, eventlog.Command, "%s in state %s", m.Label(), d.State)
	}

	c := Cycle{
		At:          now,
		SunAltitude: alt,
		Decision:    d,
		Changed:     changed,
		Status:      report.NewStatus(now, d.State, s.sched.Connectivity(), alt, store, s.sched.Statistics()),
	}
	s.mu.Lock()
	s.last = c
	s.mu.Unlock()

	if s.reporter != nil {
		if err := s.reporter.Report(ctx, c.Status); err != nil {
			eventlog.Eventf(s.sink, eventlog.Report, "%v", err)
		}
	}
	return c
}

// Command queues a manual command for the dome.
func (s *Supervisor) Command(m telegram.Message) error {
	if err := s.sched.Send(m); err != nil {
		return err
	}
	eventlog.Eventf(s.sink, eventlog.Command, "%s (manual)", m.Label())
	return nil
}

// Apply switches to cfg. Nothing is changed unless all of cfg is valid.
// A changed device or poll section reconnects the link.
func (s *Supervisor) Apply(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		eventlog.Eventf(s.sink, eventlog.Config, "rejected: %v", err)
		return err
	}
	if err := s.settings.Apply(cfg.StationValues()); err != nil {
		eventlog.Eventf(s.sink, eventlog.Config, "rejected: %v", err)
		return err
	}

	if pc := cfg.PollConfig(); pc != s.sched.Config() {
		if err := s.sched.Reconfigure(pc); err != nil {
			return err
		}
	}

	interval := cfg.ControlInterval()
	s.mu.Lock()
	changed := interval != s.interval
	s.interval = interval
	s.mu.Unlock()
	if changed {
		select {
		case <-s.intervalC:
		default:
		}
		select {
		case s.intervalC <- interval:
		default:
		}
	}
	eventlog.Eventf(s.sink, eventlog.Config, "applied %s", cfg.Path)
	return nil
}
