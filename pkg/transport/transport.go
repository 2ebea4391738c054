// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the byte link to the dome controller, either a
// local serial port or a serial-over-WebSocket bridge.
package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// DefaultBaud is the line speed of the dome controller.
const DefaultBaud = 9600

// Endpoint describes where the dome controller is reachable.
// URL takes precedence over Port.
type Endpoint struct {
	Port string
	Baud int

	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
}

// IsSerial reports whether the endpoint is a local serial port.
func (e Endpoint) IsSerial() bool {
	return e.URL == "" && e.Port != ""
}

// IsZero reports whether no transport is configured.
func (e Endpoint) IsZero() bool {
	return e.URL == "" && e.Port == ""
}

func (e Endpoint) String() string {
	switch {
	case e.URL != "":
		return fmt.Sprintf("WebSocket: %s", e.URL)
	case e.Port != "":
		return fmt.Sprintf("Serial: %s @ %d baud", e.Port, e.baud())
	default:
		return "none"
	}
}

func (e Endpoint) baud() int {
	if e.Baud <= 0 {
		return DefaultBaud
	}
	return e.Baud
}

// Opener opens a connection to an endpoint. Tests substitute their own.
type Opener func(ctx context.Context, e Endpoint) (Connection, error)

// Open opens either a serial or WebSocket connection based on the endpoint
func Open(ctx context.Context, e Endpoint) (Connection, error) {
	switch {
	case e.URL != "":
		conn, err := OpenWebSocket(ctx, e.URL, e.Username, e.Password, e.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case e.Port != "":
		conn, err := OpenSerial(e.Port, e.baud())
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, errors.New("either a serial port or a WebSocket URL must be configured")
	}
}
