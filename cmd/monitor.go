// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

var (
	monitorPoll  bool
	monitorStats int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display telegrams on the link in human-readable format",
	Long: `Continuously decode and display dome telegrams as they arrive.

By default the link is only listened to, which is useful next to another
master. With --poll the status requests are sent as well, using the poll
timings from the configuration, and outgoing telegrams are shown too.

Every status reply is followed by a summary of the decoded snapshot.
Statistics are printed every --stats seconds (0 disables them).

Supports serial, WebSocket and simulated connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorPoll, "poll", false, "Send status requests instead of only listening")
	monitorCmd.Flags().IntVar(&monitorStats, "stats", 0, "Statistics interval in seconds (0 disables)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Cupola - Telegram Monitor\n")
	fmt.Printf("Connection: %s\n", describe(cfg))
	fmt.Printf("Address: 0x%02X\n", cfg.Device.Address)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if monitorPoll {
		log := eventlog.NewLogger(eventlog.LoggerOptions{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
		store := device.NewStore()
		sched, err := poll.New(cfg.PollConfig(), poll.Options{
			Open:     opener(cfg),
			Store:    store,
			Sink:     eventlog.NewLogSink(log),
			Observer: func(f poll.Frame) { printFrame(f, store) },
		})
		if err != nil {
			return err
		}
		return monitorPolling(ctx, sched)
	}

	conn, _, err := OpenConnection(ctx, cfg)
	if err != nil {
		return err
	}
	return monitorPassive(ctx, conn, byte(cfg.Device.Address))
}

// monitorPassive decodes whatever appears on the link.
func monitorPassive(ctx context.Context, conn transport.Connection, address byte) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	store := device.NewStore()
	asm := telegram.NewAssembler()
	stats := poll.Statistics{StartTime: time.Now()}
	nextStats := statsDeadline(time.Now())
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				printStatistics(&stats)
				return nil
			}
			// a closed bridge does not come back
			if errors.Cause(err) == transport.ErrConnectionClosed {
				fmt.Println("Connection closed")
				return nil
			}
			return errors.Annotate(err, "read")
		}

		now := time.Now()
		for _, raw := range asm.Feed(buf[:n]) {
			stats.Frames++
			tg, err := telegram.Decode(raw)
			if err != nil {
				stats.Malformed++
				fmt.Printf("[%s] [ERROR] %v (%s)\n", now.Format("15:04:05.000"), err, telegram.FormatHex(raw))
				continue
			}
			fmt.Println(telegram.FormatTelegram(tg, now))
			if !tg.FromSlave() {
				stats.Requests++
				continue
			}
			if tg.Address != address {
				stats.Ignored++
				continue
			}
			kind, err := store.Decode(tg.Payload, now)
			if err != nil {
				stats.InvalidState++
				fmt.Printf("  [ERROR] %v\n", err)
				continue
			}
			switch kind {
			case device.KindBasic:
				stats.Basic++
			case device.KindEnv:
				stats.Env++
			case device.KindShaft:
				stats.Shaft++
			}
			fmt.Print(formatSnapshot(kind, store))
		}
		if asm.Pending() > poll.OverflowLimit {
			stats.Overflows++
			fmt.Printf("[%s] [ERROR] %d bytes without terminator, resynchronizing\n", now.Format("15:04:05.000"), asm.Pending())
			asm.Reset()
		}

		if !nextStats.IsZero() && now.After(nextStats) {
			stats.LastUpdateTime = now
			printStatistics(&stats)
			nextStats = statsDeadline(now)
		}
	}
}

// monitorPolling runs the poll scheduler and prints every frame it sees.
func monitorPolling(ctx context.Context, sched *poll.Scheduler) error {
	if monitorStats > 0 {
		go func() {
			t := time.NewTicker(time.Duration(monitorStats) * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					fmt.Print(sched.Statistics().String())
				}
			}
		}()
	}

	err := sched.Run(ctx)
	fmt.Print(sched.Statistics().String())
	if err != nil && errors.Cause(err) != context.Canceled {
		return err
	}
	return nil
}

// printFrame is the scheduler observer. It runs after the store has been
// updated, so the summary shows the frame just decoded.
func printFrame(f poll.Frame, store *device.Store) {
	switch {
	case f.Err != nil && len(f.Telegram.Payload) == 0:
		fmt.Printf("[%s] [ERROR] %v (%s)\n", f.At.Format("15:04:05.000"), f.Err, telegram.FormatHex(f.Raw))
	case f.Err != nil:
		fmt.Println(telegram.FormatTelegram(f.Telegram, f.At))
		fmt.Printf("  [ERROR] %v\n", f.Err)
	default:
		fmt.Println(telegram.FormatTelegram(f.Telegram, f.At))
		if !f.Outgoing && f.Kind != device.KindUnknown {
			fmt.Print(formatSnapshot(f.Kind, store))
		}
	}
}

func printStatistics(s *poll.Statistics) {
	if monitorStats <= 0 {
		return
	}
	s.LastUpdateTime = time.Now()
	s.CalculateRates(s.LastUpdateTime)
	fmt.Print(s.String())
}

func statsDeadline(now time.Time) time.Time {
	if monitorStats <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(monitorStats) * time.Second)
}

// formatSnapshot summarizes the snapshot of kind just stored.
func formatSnapshot(kind device.Kind, store *device.Store) string {
	switch kind {
	case device.KindBasic:
		b := store.Basic()
		label := "Status"
		if b.IsAck() {
			label = "Ack"
		}
		return fmt.Sprintf("  %s: [%s] Env: [%s] Errors: [%s] Uptime: %s\n",
			label,
			strings.Join(b.Status().Names(), " "),
			strings.Join(b.Env().Names(), " "),
			strings.Join(b.Errors().Names(), " "),
			formatUptime(b.Uptime()))
	case device.KindEnv:
		e := store.Env()
		return fmt.Sprintf("  Lens: %.1f°C  CPU: %.1f°C  Ambient: %.1f°C  Humidity: %.1f%%\n",
			e.TemperatureLens(), e.TemperatureCPU(), e.TemperatureAmbient(), e.Humidity())
	case device.KindShaft:
		z := store.Shaft()
		legacy := ""
		if z.Legacy() {
			legacy = " (legacy)"
		}
		return fmt.Sprintf("  Shaft position: %d%s\n", z.Position(), legacy)
	default:
		return ""
	}
}
