// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"golang.org/x/term"

	"github.com/Thermoquad/cupola/pkg/config"
	"github.com/Thermoquad/cupola/pkg/simulator"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

// simulatedDome is shared by every connection opened with --simulate.
var simulatedDome *simulator.Dome

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.EnvWSPassword); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Annotate(err, "failed to read password")
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// opener returns how links are opened: the simulated dome with
// --simulate, the real transport otherwise.
func opener(cfg *config.Config) transport.Opener {
	if !simulate {
		return transport.Open
	}
	if simulatedDome == nil {
		simulatedDome = simulator.New(byte(cfg.Device.Address))
	}
	return simulatedDome.Open
}

// describe names the link for banners.
func describe(cfg *config.Config) string {
	if simulate {
		return "Simulated dome"
	}
	return cfg.Endpoint().String()
}

// OpenConnection opens the configured link once, without the scheduler.
func OpenConnection(ctx context.Context, cfg *config.Config) (transport.Connection, string, error) {
	e := cfg.Endpoint()
	if e.IsZero() && !simulate {
		return nil, "", errors.New("either --port, --url or --simulate must be specified")
	}
	conn, err := opener(cfg)(ctx, e)
	if err != nil {
		return nil, "", err
	}
	return conn, describe(cfg), nil
}

// readTelegram returns the next slave frame for address, skipping
// master echoes and frames for other devices.
func readTelegram(conn transport.Connection, asm *telegram.Assembler, address byte) (telegram.Telegram, error) {
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return telegram.Telegram{}, err
		}
		for _, raw := range asm.Feed(buf[:n]) {
			tg, err := telegram.Decode(raw)
			if err != nil {
				continue
			}
			if tg.FromSlave() && tg.Address == address {
				return tg, nil
			}
		}
	}
}
