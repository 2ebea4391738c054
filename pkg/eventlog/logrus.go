// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sirupsen/logrus"
)

// Noisy kinds are limited to a burst of 5 and one per second after that.
const (
	limitBurst = 5
	limitRate  = 1.0
)

var levels = map[Kind]logrus.Level{
	Malformed:    logrus.WarnLevel,
	InvalidState: logrus.WarnLevel,
	Transport:    logrus.WarnLevel,
	Watchdog:     logrus.WarnLevel,
	State:        logrus.InfoLevel,
	Command:      logrus.InfoLevel,
	Config:       logrus.InfoLevel,
	Report:       logrus.DebugLevel,
}

var noisy = map[Kind]bool{
	Malformed:    true,
	InvalidState: true,
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level  string // logrus level name, or "off"
	JSON   bool
	Output io.Writer
}

// NewLogger builds the process logger.
func NewLogger(opts LoggerOptions) *logrus.Logger {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Level == "off" || opts.Level == "none" {
		logger.SetOutput(io.Discard)
	} else {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetOutput(out)
	}

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}
	return logger
}

// LogSink writes events to a logrus logger and rate limits the noisy ones.
type LogSink struct {
	log   logrus.FieldLogger
	clock ratelimit.Clock

	mu         sync.Mutex
	buckets    map[Kind]*ratelimit.Bucket
	suppressed map[Kind]int
}

// NewLogSink creates a sink on log using the wall clock.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return NewLogSinkWithClock(log, realClock{})
}

// NewLogSinkWithClock is NewLogSink with an explicit limiter clock.
func NewLogSinkWithClock(log logrus.FieldLogger, clock ratelimit.Clock) *LogSink {
	return &LogSink{
		log:        log,
		clock:      clock,
		buckets:    make(map[Kind]*ratelimit.Bucket),
		suppressed: make(map[Kind]int),
	}
}

func (s *LogSink) Event(kind Kind, text string) {
	entry := s.log.WithField("kind", string(kind))

	if noisy[kind] {
		s.mu.Lock()
		bucket, ok := s.buckets[kind]
		if !ok {
			bucket = ratelimit.NewBucketWithRateAndClock(limitRate, limitBurst, s.clock)
			s.buckets[kind] = bucket
		}
		if bucket.TakeAvailable(1) == 0 {
			s.suppressed[kind]++
			s.mu.Unlock()
			return
		}
		if n := s.suppressed[kind]; n > 0 {
			entry = entry.WithField("suppressed", n)
			s.suppressed[kind] = 0
		}
		s.mu.Unlock()
	}

	level, ok := levels[kind]
	if !ok {
		level = logrus.InfoLevel
	}
	switch level {
	case logrus.WarnLevel:
		entry.Warn(text)
	case logrus.DebugLevel:
		entry.Debug(text)
	default:
		entry.Info(text)
	}
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
