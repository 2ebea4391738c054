// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"fmt"
	"strings"
	"time"
)

// FormatTelegram formats a telegram into a human-readable line
func FormatTelegram(t Telegram, at time.Time) string {
	dir := "host->dev"
	if t.FromSlave() {
		dir = "dev->host"
	}
	return fmt.Sprintf("[%s] %s %s addr=%02X len=%d payload=%s",
		at.Format("15:04:05.000"), dir, FormatMessage(t.Payload), t.Address, len(t.Payload), FormatHex(t.Payload))
}

// FormatMessage returns the human-readable name for a payload
func FormatMessage(payload []byte) string {
	if len(payload) == 0 {
		return "EMPTY"
	}
	if m, ok := MessageForPayload(payload); ok {
		return strings.ToUpper(strings.ReplaceAll(m.Name(), "-", "_"))
	}
	switch payload[0] {
	case TagBasic:
		return "BASIC_STATUS"
	case TagCommand:
		return "COMMAND_ACK"
	case TagEnv:
		return "ENV_STATUS"
	case TagShaft, TagShaftLegacy:
		return "SHAFT_STATUS"
	default:
		return "UNKNOWN"
	}
}

// FormatHex renders bytes as space-separated uppercase hex pairs
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
