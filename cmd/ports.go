// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

var (
	portsProbe   bool
	portsTimeout int
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and find the dome controller",
	Long: `List the serial ports present on this system.

With --probe a basic status request is sent on every port, at the
configured baud rate and address, and the ports that answer are reported.
Do not probe while "cupola run" holds the port.

Exit codes:
  0 - Ports listed (with --probe: at least one controller answered)
  1 - No ports found (with --probe: no controller answered)`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsProbe, "probe", false, "Send a basic status request on every port")
	portsCmd.Flags().IntVar(&portsTimeout, "timeout", 1, "Timeout in seconds for each probe")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		os.Exit(1)
	}

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	if !portsProbe {
		for _, p := range ports {
			marker := ""
			if p == cfg.Device.Port {
				marker = " (configured)"
			}
			fmt.Printf("%s%s\n", p, marker)
		}
		return nil
	}

	address := byte(cfg.Device.Address)
	fmt.Printf("Cupola - Port Probe\n")
	fmt.Printf("Address: 0x%02X, %d baud, timeout %ds\n\n", address, cfg.Device.Baud, portsTimeout)

	found := 0
	for _, p := range ports {
		fmt.Printf("%s: ", p)
		tg, err := probePort(p, cfg.Device.Baud, address, time.Duration(portsTimeout)*time.Second)
		if err != nil {
			fmt.Printf("%v\n", err)
			continue
		}
		found++
		fmt.Printf("%s\n", telegram.FormatMessage(tg.Payload))
	}

	fmt.Printf("\n--- Probe summary ---\n")
	fmt.Printf("Controllers found: %d of %d ports\n", found, len(ports))
	if found == 0 {
		os.Exit(1)
	}
	return nil
}

// probePort asks the device at address on port for its basic status.
func probePort(port string, baud int, address byte, timeout time.Duration) (telegram.Telegram, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := transport.Open(ctx, transport.Endpoint{Port: port, Baud: baud})
	if err != nil {
		return telegram.Telegram{}, err
	}
	defer conn.Close()

	frame, err := telegram.RequestBasic.Encode(address)
	if err != nil {
		return telegram.Telegram{}, err
	}
	if _, err := conn.Write(frame); err != nil {
		return telegram.Telegram{}, err
	}

	type reply struct {
		tg  telegram.Telegram
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		tg, err := readTelegram(conn, telegram.NewAssembler(), address)
		replies <- reply{tg, err}
	}()

	select {
	case r := <-replies:
		return r.tg, r.err
	case <-ctx.Done():
		return telegram.Telegram{}, errors.Errorf("no reply in %v", timeout)
	}
}
