// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"encoding/binary"
	"time"

	"github.com/Thermoquad/cupola/pkg/telegram"
)

// Shaft payload lengths
const (
	ShaftSize       = 3
	ShaftLegacySize = 9
)

// ShaftStatus is the decoded cover shaft position.
type ShaftStatus struct {
	Snapshot
	position int16
	legacy   bool
}

// DecodeShaft decodes a 3 byte 'Z' payload captured at at.
func DecodeShaft(payload []byte, at time.Time) (ShaftStatus, error) {
	if len(payload) != ShaftSize {
		return ShaftStatus{}, invalidf(KindShaft, "length %d, want %d", len(payload), ShaftSize)
	}
	if payload[0] != telegram.TagShaft {
		return ShaftStatus{}, invalidf(KindShaft, "tag 0x%02X", payload[0])
	}
	return ShaftStatus{
		Snapshot: Snapshot{captured: at},
		position: int16(binary.LittleEndian.Uint16(payload[1:3])),
	}, nil
}

// DecodeShaftLegacy decodes the older 9 byte 'W' payload. Only the first
// value is the position; the rest are not interpreted.
func DecodeShaftLegacy(payload []byte, at time.Time) (ShaftStatus, error) {
	if len(payload) != ShaftLegacySize {
		return ShaftStatus{}, invalidf(KindShaft, "length %d, want %d", len(payload), ShaftLegacySize)
	}
	if payload[0] != telegram.TagShaftLegacy {
		return ShaftStatus{}, invalidf(KindShaft, "tag 0x%02X", payload[0])
	}
	return ShaftStatus{
		Snapshot: Snapshot{captured: at},
		position: int16(binary.LittleEndian.Uint16(payload[1:3])),
		legacy:   true,
	}, nil
}

func (s ShaftStatus) Position() int16 { return s.position }
func (s ShaftStatus) Legacy() bool    { return s.legacy }
