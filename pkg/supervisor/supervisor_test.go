// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cupola/pkg/config"
	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/report"
	"github.com/Thermoquad/cupola/pkg/simulator"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/telegram"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig() *config.Config {
	c := config.Default()
	c.Device.URL = "ws://simulated"
	c.Poll.IntervalMs = 10
	c.Poll.WatchdogMs = 150
	c.Poll.RescanMinMs = 10
	c.Poll.RescanMaxMs = 40
	c.Control.IntervalMs = 20
	return c
}

func fixedSun(alt float64) func(lat, lon float64, t time.Time) float64 {
	return func(float64, float64, time.Time) float64 { return alt }
}

type recordingReporter struct {
	mu       sync.Mutex
	statuses []report.Status
	closed   bool
}

func (r *recordingReporter) Report(_ context.Context, s report.Status) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
	return nil
}

func (r *recordingReporter) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingReporter) last() (report.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return report.Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

type harness struct {
	dome     *simulator.Dome
	sup      *Supervisor
	events   *eventlog.Recorder
	reporter *recordingReporter
	done     chan error
}

func start(t *testing.T, cfg *config.Config, opts Options, setup func(*simulator.Dome)) *harness {
	t.Helper()
	h := &harness{
		dome:     simulator.New(telegram.DefaultAddress),
		events:   &eventlog.Recorder{},
		reporter: &recordingReporter{},
		done:     make(chan error, 1),
	}
	if setup != nil {
		setup(h.dome)
	}
	opts.Open = h.dome.Open
	opts.Sink = h.events
	opts.Reporter = h.reporter
	if opts.Sun == nil {
		opts.Sun = fixedSun(-30)
	}

	s, err := New(cfg, opts)
	require.NoError(t, err)
	h.sup = s

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("supervisor did not stop")
		}
	})
	return h
}

func (h *harness) waitState(t *testing.T, want station.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.sup.State() == want }, waitFor, tick,
		"state %s, want %s", h.sup.State(), want)
}

func TestNightOpensAndObserves(t *testing.T) {
	h := start(t, testConfig(), Options{}, nil)
	h.waitState(t, station.Observing)

	st := h.dome.Status()
	assert.True(t, st.Has(device.StatusOpen))
	assert.True(t, st.Has(device.StatusIntensifier))
	assert.True(t, st.Has(device.StatusFan))
	assert.Contains(t, h.dome.Commands(), telegram.CommandOpenCover)

	require.Eventually(t, func() bool {
		s, ok := h.reporter.last()
		return ok && s.State == "O" && s.Connectivity == "online"
	}, waitFor, tick)
	assert.Positive(t, h.events.Count(eventlog.State))
	assert.Positive(t, h.events.Count(eventlog.Command))
}

func TestDaylightCloses(t *testing.T) {
	h := start(t, testConfig(), Options{Sun: fixedSun(25)}, func(d *simulator.Dome) {
		d.SetStatus(device.StatusOpen | device.StatusIntensifier | device.StatusFan)
	})
	h.waitState(t, station.Daylight)
	require.Eventually(t, func() bool {
		st := h.dome.Status()
		return st.Has(device.StatusClosed) && !st.Has(device.StatusIntensifier)
	}, waitFor, tick)
	assert.NotContains(t, h.dome.Commands(), telegram.CommandOpenCover)
}

func TestHumidityBlocksOpening(t *testing.T) {
	h := start(t, testConfig(), Options{}, func(d *simulator.Dome) {
		d.SetHumidity(85)
	})
	h.waitState(t, station.RainOrHumid)

	// a few more cycles
	n := len(h.dome.Received())
	require.Eventually(t, func() bool { return len(h.dome.Received()) > n+10 }, waitFor, tick)
	assert.Equal(t, station.RainOrHumid, h.sup.State())
	assert.NotContains(t, h.dome.Commands(), telegram.CommandOpenCover)
	assert.True(t, h.dome.Status().Has(device.StatusClosed))
}

func TestRainClosesOpenCover(t *testing.T) {
	h := start(t, testConfig(), Options{}, func(d *simulator.Dome) {
		d.SetStatus(device.StatusOpen | device.StatusIntensifier | device.StatusFan)
		d.SetHumidity(95)
	})
	require.Eventually(t, func() bool {
		return h.dome.Status().Has(device.StatusClosed)
	}, waitFor, tick)
	h.waitState(t, station.RainOrHumid)
}

func TestSilentDomeIsUnreachable(t *testing.T) {
	h := start(t, testConfig(), Options{}, func(d *simulator.Dome) {
		d.SetSilent(true)
	})
	require.Eventually(t, func() bool {
		s, ok := h.reporter.last()
		return ok && s.State == "U"
	}, waitFor, tick)
	assert.Equal(t, station.DomeUnreachable, h.sup.State())
	assert.Empty(t, h.dome.Commands())
	s, _ := h.reporter.last()
	assert.Nil(t, s.Basic)
}

func TestDryRunSendsNothing(t *testing.T) {
	h := start(t, testConfig(), Options{DryRun: true}, nil)
	h.waitState(t, station.NotObserving)
	require.Eventually(t, func() bool {
		return len(h.sup.Last().Decision.Commands) > 0
	}, waitFor, tick)
	assert.Equal(t, []telegram.Message{telegram.CommandOpenCover}, h.sup.Last().Decision.Commands)
	assert.Empty(t, h.dome.Commands())
}

func TestManualCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Control.Manual = true
	h := start(t, cfg, Options{}, nil)
	h.waitState(t, station.Manual)

	require.NoError(t, h.sup.Command(telegram.CommandHeaterOn))
	require.Eventually(t, func() bool {
		return h.dome.Status().Has(device.StatusLensHeater)
	}, waitFor, tick)
	assert.Equal(t, []telegram.Message{telegram.CommandHeaterOn}, h.dome.Commands())
}

func TestApply(t *testing.T) {
	h := start(t, testConfig(), Options{}, func(d *simulator.Dome) {
		d.SetHumidity(85)
	})
	h.waitState(t, station.RainOrHumid)

	bad := testConfig()
	bad.Control.HumidityLower = 95
	bad.Control.Manual = true
	err := h.sup.Apply(bad)
	require.Error(t, err)
	assert.True(t, station.IsConfigurationError(err))
	assert.False(t, h.sup.Settings().Values().Manual, "rejected config must not leak")
	assert.Equal(t, 80.0, h.sup.Settings().Values().Humidity.Lower)

	// raising the limits lets the cover open
	good := testConfig()
	good.Control.HumidityLower = 88
	good.Control.HumidityUpper = 95
	require.NoError(t, h.sup.Apply(good))
	h.waitState(t, station.Observing)

	opens := h.dome.Opens()
	moved := testConfig()
	moved.Control.HumidityLower = 88
	moved.Control.HumidityUpper = 95
	moved.Device.URL = "ws://elsewhere"
	moved.Control.IntervalMs = 30
	require.NoError(t, h.sup.Apply(moved))
	require.Eventually(t, func() bool { return h.dome.Opens() > opens }, waitFor, tick)
	assert.Equal(t, "ws://elsewhere", h.sup.Scheduler().Config().Endpoint.URL)
	assert.Positive(t, h.events.Count(eventlog.Config))
}

func TestStop(t *testing.T) {
	h := &harness{reporter: &recordingReporter{}, dome: simulator.New(telegram.DefaultAddress)}
	s, err := New(testConfig(), Options{Open: h.dome.Open, Reporter: h.reporter, Sun: fixedSun(-30)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		return s.Scheduler().Connectivity() == poll.Online
	}, waitFor, tick)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	h.reporter.mu.Lock()
	assert.True(t, h.reporter.closed)
	h.reporter.mu.Unlock()

	assert.Error(t, s.Run(context.Background()), "cannot restart")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Poll.IntervalMs = 700
	cfg.Poll.WatchdogMs = 2000
	_, err := New(cfg, Options{})
	assert.True(t, station.IsConfigurationError(err))
}

func TestStepWithoutRun(t *testing.T) {
	s, err := New(testConfig(), Options{Sun: fixedSun(-30)})
	require.NoError(t, err)
	c := s.Step(context.Background())
	assert.Equal(t, station.DomeUnreachable, c.Decision.State)
	assert.Empty(t, c.Decision.Commands)
	assert.Equal(t, "detached", c.Status.Connectivity)
	assert.Equal(t, -30.0, c.SunAltitude)
	assert.False(t, c.Changed, "controller starts unreachable")
}
