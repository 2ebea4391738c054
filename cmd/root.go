// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/config"
	"github.com/Thermoquad/cupola/pkg/transport"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string
	address    int
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "cupola",
	Short: "Astronomical dome supervisor",
	Long: `Cupola - supervises an all-sky camera dome over its serial link.

It polls the dome controller for status, decides from darkness, rain and
humidity whether the cover may be open, and commands the dome accordingly.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate

Settings are read from --config (HCL). Flags given on the command line
override the device section of that file.

For WebSocket authentication, the password is read from the CUPOLA_WS_PASSWORD
environment variable (or a .env file), or prompted interactively if not set.
The --password flag is intentionally not provided to avoid leaking credentials
in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", transport.DefaultBaud, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	rootCmd.PersistentFlags().IntVarP(&address, "address", "a", 0x99, "Dome controller address")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Talk to a built-in simulated dome")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration, prompting for the WebSocket
// password when one is needed and not in the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Device.URL != "" && cfg.Device.Username != "" && cfg.Device.Password == "" && !simulate {
		if cfg.Device.Password, err = GetPassword(); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// readConfig reads the configuration file and applies command line
// overrides on top of it.
func readConfig() (*config.Config, error) {
	config.LoadDotEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("port") {
		cfg.Device.Port = portName
		cfg.Device.URL = ""
	}
	if flags.Changed("baud") {
		cfg.Device.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Device.URL = wsURL
		cfg.Device.Port = ""
	}
	if flags.Changed("username") {
		cfg.Device.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Device.SkipTLSVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		cfg.Device.Address = address
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if simulate {
		cfg.Device.Port, cfg.Device.URL = "", ""
	}
	return cfg, cfg.Validate()
}
