// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package report

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/poll"
)

// Systemd notifies the service manager. READY is sent with the first
// report, WATCHDOG on every report while a transport is open, and STATUS
// carries the state tooltip. Outside systemd every call is a no-op.
type Systemd struct {
	notify func(state string) (bool, error)
	ready  bool
}

func NewSystemd() *Systemd {
	return &Systemd{notify: func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	}}
}

func (s *Systemd) Report(ctx context.Context, st Status) error {
	var lines []string
	if !s.ready {
		lines = append(lines, daemon.SdNotifyReady)
		s.ready = true
	}
	if st.Connectivity != poll.Detached.String() {
		lines = append(lines, daemon.SdNotifyWatchdog)
	}
	lines = append(lines, "STATUS="+st.Tooltip)

	_, err := s.notify(strings.Join(lines, "\n"))
	return errors.Annotate(err, "sdnotify")
}

func (s *Systemd) Close() error {
	_, err := s.notify(daemon.SdNotifyStopping)
	return errors.Annotate(err, "sdnotify")
}
