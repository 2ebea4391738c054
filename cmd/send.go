// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/telegram"
)

var (
	sendTimeout int
	sendCount   int
	sendDryRun  bool
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one request or command and wait for the reply",
	Long: `Send a single telegram to the dome controller and print its reply.

Messages:
  ` + strings.Join(telegram.MessageNames(), ", ") + `

This bypasses the supervisor: run it only while "cupola run" is stopped,
the controller has a single master. With --dry-run the encoded frame is
printed and nothing is opened.

Exit codes:
  0 - Every telegram was answered
  1 - One or more telegrams failed or timed out
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: telegram.MessageNames(),
	RunE:      runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 2, "Timeout in seconds for each reply")
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of times to send")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Print the encoded frame without sending it")
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendCount < 1 {
		return errors.NotValidf("--count %d", sendCount)
	}
	msg, ok := telegram.MessageByName(args[0])
	if !ok {
		return errors.NotFoundf("message %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	address := byte(cfg.Device.Address)

	frame, err := msg.Encode(address)
	if err != nil {
		return err
	}
	if sendDryRun {
		fmt.Printf("%s: %s\n", msg.Label(), telegram.FormatHex(frame))
		return nil
	}

	conn, connInfo, err := OpenConnection(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Cupola - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Message: %s (%s)\n", msg.Label(), telegram.FormatHex(frame))
	fmt.Printf("Timeout: %d seconds per reply\n\n", sendTimeout)

	type reply struct {
		tg  telegram.Telegram
		err error
	}
	// a single reader for the whole run; a late reply is drained on the
	// next attempt instead of racing a second reader
	replies := make(chan reply, 1)
	asm := telegram.NewAssembler()
	go func() {
		for {
			tg, err := readTelegram(conn, asm, address)
			replies <- reply{tg, err}
			if err != nil {
				return
			}
		}
	}()

	store := device.NewStore()
	successCount := 0
	failCount := 0
	readFailed := false

	for i := 1; i <= sendCount && !readFailed; i++ {
		fmt.Printf("%d/%d: ", i, sendCount)

	drain:
		for {
			select {
			case <-replies:
			default:
				break drain
			}
		}

		startTime := time.Now()
		if _, err := conn.Write(frame); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case r := <-replies:
			if r.err != nil {
				fmt.Printf("READ FAILED: %v\n", r.err)
				failCount++
				readFailed = true
				continue
			}
			rtt := time.Since(startTime)
			fmt.Printf("%s, rtt=%v\n", telegram.FormatMessage(r.tg.Payload), rtt.Round(time.Millisecond))
			kind, err := store.Decode(r.tg.Payload, time.Now())
			if err != nil {
				fmt.Printf("  [ERROR] %v\n", err)
				failCount++
				continue
			}
			fmt.Print(formatSnapshot(kind, store))
			successCount++

		case <-time.After(time.Duration(sendTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no reply in %ds)\n", sendTimeout)
			failCount++
		}

		// the controller needs a moment between commands
		if i < sendCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Send statistics ---\n")
	fmt.Printf("%d telegrams sent, %d replies received, %.0f%% loss\n",
		sendCount, successCount, float64(sendCount-successCount)/float64(sendCount)*100)

	if failCount > 0 || successCount < sendCount {
		os.Exit(1)
	}
	return nil
}
