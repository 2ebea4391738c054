// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/supervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Interactive dome status dashboard",
	Long: `Show the live station state, dome status and link statistics.

The dashboard polls the dome and evaluates every control cycle like
"cupola run", but never sends the resulting commands: it shows them as
"Would send" instead. Dome commands are sent only from the keyboard:

  o / c   open / close cover
  f / F   fan on / off
  i / I   image intensifier on / off
  h / H   hotwire heater on / off
  r       reset slave
  s       clear statistics
  q       quit

The settings keys change only this dashboard's evaluation, shown as
"Would send". They do not reach a running "cupola run":

  m       toggle manual mode
  v       toggle safety override
  - / +   darkness threshold down / up by 1°
  [ / ]   humidity limits down / up by 1%

Do not run it next to "cupola run" on the same link.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Endpoint().IsZero() && !simulate {
		return errors.New("either --port, --url or --simulate must be specified")
	}

	events := make(chanSink, 64)
	sup, err := supervisor.New(cfg, supervisor.Options{
		Open:   opener(cfg),
		Sink:   events,
		DryRun: true,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	p := tea.NewProgram(initialModel(sup, describe(cfg), events))
	_, err = p.Run()

	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}
