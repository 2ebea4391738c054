// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time        { return c.now }
func (c *testClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func TestLogSinkLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := NewLogSink(logger)

	sink.Event(State, "observing")
	sink.Event(Transport, "port gone")
	sink.Event(Report, "published")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "state", entries[0].Data["kind"])
	assert.Equal(t, "observing", entries[0].Message)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, logrus.DebugLevel, entries[2].Level)
}

func TestLogSinkLimitsNoisyKinds(t *testing.T) {
	logger, hook := test.NewNullLogger()
	clock := &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	sink := NewLogSinkWithClock(logger, clock)

	for i := 0; i < 20; i++ {
		sink.Event(Malformed, "bad checksum")
	}
	assert.Len(t, hook.AllEntries(), limitBurst)

	// other kinds are never limited
	for i := 0; i < 20; i++ {
		sink.Event(Command, "close cover")
	}
	assert.Len(t, hook.AllEntries(), limitBurst+20)

	hook.Reset()
	clock.Sleep(time.Second)
	sink.Event(Malformed, "bad end byte")

	entries := hook.AllEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, 15, entries[0].Data["suppressed"])
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerOptions{Level: "warn", JSON: true, Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = NewLogger(LoggerOptions{Level: "off", Output: &buf})
	logger.Error("nothing")
	assert.Empty(t, buf.String())

	logger = NewLogger(LoggerOptions{Level: "bogus", Output: &buf})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	sink := Multi{a, b, Discard}

	Eventf(sink, Watchdog, "no reply for %s", 2*time.Second)
	sink.Event(State, "daylight")

	assert.Equal(t, []Entry{{Watchdog, "no reply for 2s"}, {State, "daylight"}}, a.Entries())
	assert.Equal(t, 1, b.Count(State))
	assert.Equal(t, 0, b.Count(Malformed))
}
