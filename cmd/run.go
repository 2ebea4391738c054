// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/report"
	"github.com/Thermoquad/cupola/pkg/supervisor"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dome supervisor",
	Long: `Poll the dome controller and operate the cover until interrupted.

Every control cycle the station state is derived from the latest device
snapshots, the sun altitude at the configured location and the operator
settings. Commands needed to reach a safe state are sent to the dome.

Status is published to MQTT when the mqtt block is enabled, and to systemd
when control.systemd is set (Type=notify with WatchdogSec).

Signals:
  SIGHUP          reload the configuration file
  SIGINT, SIGTERM stop`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Evaluate but never send commands")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Endpoint().IsZero() && !simulate {
		return errors.New("no device configured: set device.port or device.url, or pass --port, --url or --simulate")
	}

	log := eventlog.NewLogger(eventlog.LoggerOptions{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	sink := eventlog.NewLogSink(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reporters report.Multi
	if cfg.MQTT.Enabled {
		m := report.NewMQTT(report.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
		}, sink)
		// the dome must be supervised even while the broker is down
		go func() {
			if err := m.Connect(ctx); err != nil {
				eventlog.Eventf(sink, eventlog.Report, "mqtt: %v", err)
			}
		}()
		reporters = append(reporters, m)
	}
	if cfg.Control.Systemd {
		reporters = append(reporters, report.NewSystemd())
	}

	sup, err := supervisor.New(cfg, supervisor.Options{
		Open:     opener(cfg),
		Sink:     sink,
		Reporter: reporters,
		DryRun:   runDryRun,
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"device":   describe(cfg),
		"address":  cfg.Device.Address,
		"config":   cfg.Path,
		"location": cfg.Location.Position(),
		"dry_run":  runDryRun,
	}).Info("cupola starting")

	go reloadOnHangup(ctx, sup, sink, cfg.Device.Password)

	err = sup.Run(ctx)
	log.Info("cupola stopped")
	return err
}

// reloadOnHangup re-reads the configuration on SIGHUP. The WebSocket
// password entered at startup is reused, there is no terminal to ask.
func reloadOnHangup(ctx context.Context, sup *supervisor.Supervisor, sink eventlog.Sink, password string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := readConfig()
			if err != nil {
				eventlog.Eventf(sink, eventlog.Config, "reload failed, keeping current settings: %v", err)
				continue
			}
			if cfg.Device.Password == "" {
				cfg.Device.Password = password
			}
			// Apply reports rejections itself
			_ = sup.Apply(cfg)
		}
	}
}
