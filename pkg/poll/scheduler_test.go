// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/simulator"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Endpoint = transport.Endpoint{URL: "ws://simulated"}
	cfg.Interval = 10 * time.Millisecond
	cfg.Watchdog = 150 * time.Millisecond
	cfg.RescanMin = 10 * time.Millisecond
	cfg.RescanMax = 40 * time.Millisecond
	return cfg
}

type harness struct {
	dome   *simulator.Dome
	sched  *Scheduler
	events *eventlog.Recorder
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg Config, opts Options) *harness {
	t.Helper()
	h := &harness{
		dome:   simulator.New(telegram.DefaultAddress),
		events: &eventlog.Recorder{},
		done:   make(chan error, 1),
	}
	if opts.Open == nil {
		opts.Open = h.dome.Open
	}
	opts.Sink = h.events

	s, err := New(cfg, opts)
	require.NoError(t, err)
	h.sched = s

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("scheduler did not stop")
		}
	})
	return h
}

func (h *harness) waitOnline(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.sched.Connectivity() == Online
	}, waitFor, tick)
}

func TestRoundRobinOrder(t *testing.T) {
	h := start(t, testConfig(), Options{})

	require.Eventually(t, func() bool { return len(h.dome.Received()) >= 7 }, waitFor, tick)

	want := []telegram.Message{telegram.RequestBasic, telegram.RequestEnv, telegram.RequestShaft}
	for i, m := range h.dome.Received()[:7] {
		assert.Equal(t, want[i%3], m, "request %d", i)
	}
}

func TestLegacyShaftRequest(t *testing.T) {
	cfg := testConfig()
	cfg.LegacyShaft = true
	h := start(t, cfg, Options{})
	h.dome.SetLegacy(true)

	require.Eventually(t, func() bool {
		return h.sched.Store().Shaft().IsValid()
	}, waitFor, tick)
	assert.True(t, h.sched.Store().Shaft().Legacy())
}

func TestSnapshotsAreStored(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	store := h.sched.Store()
	require.Eventually(t, func() bool {
		return store.Basic().IsValid() && store.Env().IsValid() && store.Shaft().IsValid()
	}, waitFor, tick)

	assert.True(t, store.Basic().DomeClosed())
	assert.InDelta(t, 45.0, store.Env().Humidity(), 1e-9)
	assert.Equal(t, int16(simulator.PositionClosed), store.Shaft().Position())

	stats := h.sched.Statistics()
	assert.NotZero(t, stats.Basic)
	assert.NotZero(t, stats.Requests)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, uint64(1), stats.Reconnects)
}

func TestWatchdogMarksUnreachable(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)
	before := h.events.Count(eventlog.Watchdog)

	h.dome.SetSilent(true)
	require.Eventually(t, func() bool {
		return h.sched.Connectivity() == Unreachable
	}, waitFor, tick)
	assert.Equal(t, before+1, h.events.Count(eventlog.Watchdog))

	// the link itself stays open and polling continues
	n := len(h.dome.Received())
	require.Eventually(t, func() bool { return len(h.dome.Received()) > n }, waitFor, tick)

	h.dome.SetSilent(false)
	h.waitOnline(t)
	assert.Equal(t, before+2, h.events.Count(eventlog.Watchdog))
}

func TestMalformedFramesAreDropped(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	h.dome.Inject([]byte("garbage\r"))
	bad, err := telegram.Encode(telegram.DefaultAddress, []byte{'S'})
	require.NoError(t, err)
	bad[len(bad)-2] ^= 0x01
	h.dome.Inject(bad)

	require.Eventually(t, func() bool {
		return h.sched.Statistics().Malformed == 2
	}, waitFor, tick)
	assert.Equal(t, 2, h.events.Count(eventlog.Malformed))
	assert.Equal(t, Online, h.sched.Connectivity())
}

func TestInvalidStateResetsAssembler(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	short, err := telegram.EncodeReply(telegram.DefaultAddress, []byte{'S', 0x01})
	require.NoError(t, err)
	// the trailing partial frame must not be joined with the next reply
	h.dome.Inject(append(short, telegram.StartSlave, '9', '9'))

	require.Eventually(t, func() bool {
		return h.sched.Statistics().InvalidState == 1
	}, waitFor, tick)

	decoded := h.sched.Statistics().Decoded()
	require.Eventually(t, func() bool {
		return h.sched.Statistics().Decoded() > decoded+3
	}, waitFor, tick)
	assert.Zero(t, h.sched.Statistics().Malformed)
	assert.Equal(t, 1, h.events.Count(eventlog.InvalidState))
}

func TestOverflowResynchronizes(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	h.dome.Inject(bytes.Repeat([]byte{'A'}, OverflowLimit+50))
	require.Eventually(t, func() bool {
		return h.sched.Statistics().Overflows == 1
	}, waitFor, tick)
}

func TestEchoAndForeignAddressAreIgnored(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.dome.SetEcho(true)
	h.waitOnline(t)

	require.Eventually(t, func() bool {
		return h.sched.Statistics().Ignored > 3
	}, waitFor, tick)
	assert.Zero(t, h.sched.Statistics().Malformed)
	assert.Zero(t, h.events.Count(eventlog.Malformed))

	foreign, err := telegram.EncodeReply(0x42, []byte{'S', 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	h.dome.Inject(foreign)
	require.Eventually(t, func() bool {
		return h.events.Count(eventlog.Malformed) == 1
	}, waitFor, tick)
}

func TestSendCommand(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	require.NoError(t, h.sched.Send(telegram.CommandOpenCover))
	require.Eventually(t, func() bool {
		return h.sched.Store().Basic().DomeOpen()
	}, waitFor, tick)
	assert.Equal(t, []telegram.Message{telegram.CommandOpenCover}, h.dome.Commands())
	assert.Equal(t, uint64(1), h.sched.Statistics().Commands)
}

func TestSendQueueFull(t *testing.T) {
	s, err := New(testConfig(), Options{})
	require.NoError(t, err)

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, s.Send(telegram.CommandNoop))
	}
	assert.Error(t, s.Send(telegram.CommandNoop))
}

func TestDetachAndRescan(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)

	h.dome.SetDetached(true)
	require.Eventually(t, func() bool {
		return h.sched.Connectivity() == Detached
	}, waitFor, tick)

	// backed off, not a tight loop
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.dome.Opens())
	assert.Less(t, h.events.Count(eventlog.Transport), 12)

	h.dome.SetDetached(false)
	h.waitOnline(t)
	assert.Equal(t, 2, h.dome.Opens())
}

func TestSerialPortMustBeListed(t *testing.T) {
	var mu sync.Mutex
	var listed []string
	present := func(name string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range listed {
			if p == name {
				return true, nil
			}
		}
		return false, nil
	}

	cfg := testConfig()
	cfg.Endpoint = transport.Endpoint{Port: "/dev/ttyUSB7"}
	h := start(t, cfg, Options{PortPresent: present})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Detached, h.sched.Connectivity())
	assert.Zero(t, h.dome.Opens())

	mu.Lock()
	listed = []string{"/dev/ttyUSB7"}
	mu.Unlock()
	h.waitOnline(t)
}

func TestReconfigure(t *testing.T) {
	first := simulator.New(telegram.DefaultAddress)
	second := simulator.New(0x42)
	second.SetStatus(device.StatusOpen)

	open := func(ctx context.Context, e transport.Endpoint) (transport.Connection, error) {
		if e.URL == "ws://second" {
			return second.Open(ctx, e)
		}
		return first.Open(ctx, e)
	}
	h := start(t, testConfig(), Options{Open: open})
	h.waitOnline(t)
	assert.True(t, h.sched.Store().Basic().DomeClosed())

	bad := testConfig()
	bad.Interval = 2 * time.Second
	err := h.sched.Reconfigure(bad)
	assert.True(t, station.IsConfigurationError(err))
	assert.Equal(t, testConfig(), h.sched.Config())

	cfg := testConfig()
	cfg.Endpoint = transport.Endpoint{URL: "ws://second"}
	cfg.Address = 0x42
	require.NoError(t, h.sched.Reconfigure(cfg))

	require.Eventually(t, func() bool {
		return h.sched.Store().Basic().DomeOpen()
	}, waitFor, tick)
	assert.Equal(t, cfg, h.sched.Config())
	assert.Equal(t, 1, first.Opens())
	assert.Equal(t, 1, second.Opens())
	assert.Equal(t, 1, h.events.Count(eventlog.Config))
}

// scriptedConn hands out queued chunks and ignores writes.
type scriptedConn struct {
	chunks chan []byte
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{chunks: make(chan []byte, 4), closed: make(chan struct{})}
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.chunks:
		return copy(p, b), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *scriptedConn) Write(p []byte) (int, error) { return len(p), nil }

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestReconfigureDropsPartialFrame(t *testing.T) {
	first, second := newScriptedConn(), newScriptedConn()
	var mu sync.Mutex
	opened := 0
	open := func(ctx context.Context, e transport.Endpoint) (transport.Connection, error) {
		mu.Lock()
		defer mu.Unlock()
		opened++
		if opened == 1 {
			return first, nil
		}
		return second, nil
	}
	h := start(t, testConfig(), Options{Open: open})

	env := make([]byte, device.EnvSize)
	env[0] = telegram.TagEnv
	envFrame, err := telegram.EncodeReply(telegram.DefaultAddress, env)
	require.NoError(t, err)
	basic := make([]byte, device.BasicSize)
	basic[0] = telegram.TagBasic
	basic[1] = byte(device.StatusClosed)
	basicFrame, err := telegram.EncodeReply(telegram.DefaultAddress, basic)
	require.NoError(t, err)

	// the env reply shows the chunk was fed, leaving half a basic reply pending
	first.chunks <- append(append([]byte(nil), envFrame...), basicFrame[:10]...)
	require.Eventually(t, func() bool {
		return h.sched.Store().Env().IsValid()
	}, waitFor, tick)

	cfg := testConfig()
	cfg.Endpoint = transport.Endpoint{URL: "ws://second"}
	require.NoError(t, h.sched.Reconfigure(cfg))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return opened == 2
	}, waitFor, tick)

	second.chunks <- basicFrame[10:]
	require.Eventually(t, func() bool {
		return h.sched.Statistics().Malformed == 1
	}, waitFor, tick)
	assert.False(t, h.sched.Store().Basic().IsValid())
	assert.Zero(t, h.sched.Statistics().Basic)
}

func TestRunTwice(t *testing.T) {
	h := start(t, testConfig(), Options{})
	h.waitOnline(t)
	assert.Error(t, h.sched.Run(context.Background()))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"slow poll", func(c *Config) { c.Interval = 2000 * time.Millisecond }},
		{"cycle exceeds staleness", func(c *Config) { c.Interval = 700 * time.Millisecond }},
		{"watchdog shorter than interval", func(c *Config) { c.Watchdog = c.Interval / 2 }},
		{"zero rescan", func(c *Config) { c.RescanMin = 0 }},
		{"rescan max below min", func(c *Config) { c.RescanMax = c.RescanMin / 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, station.IsConfigurationError(err), "%v", err)

			_, err = New(cfg, Options{})
			assert.Error(t, err)
		})
	}
}

func TestStatisticsString(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCounters(now)
	c.decoded(now, device.KindBasic)
	c.decoded(now, device.KindEnv)
	c.update(now.Add(10*time.Second), func(s *Statistics) {
		s.Frames = 4
		s.Malformed = 2
	})

	s := c.snapshot(now.Add(10 * time.Second))
	assert.Equal(t, uint64(2), s.Decoded())
	assert.InDelta(t, 0.4, s.FrameRate, 1e-9)
	assert.InDelta(t, 0.2, s.ErrorRate, 1e-9)

	out := s.String()
	assert.Contains(t, out, "=== Statistics (10 seconds) ===")
	assert.Contains(t, out, "Decoded:                2 (50.0%)")
	assert.Contains(t, out, "  Malformed:            2")
	assert.NotContains(t, out, "Reconnects")

	c.reset(now)
	assert.Zero(t, c.snapshot(now).Frames)
}
