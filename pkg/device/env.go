// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"encoding/binary"
	"time"

	"github.com/Thermoquad/cupola/pkg/telegram"
)

// EnvSize is the payload length of an environment reply.
const EnvSize = 9

// EnvStatus is the decoded 'T' reply. Values are tenths on the wire.
type EnvStatus struct {
	Snapshot
	lens, cpu, ambient, humidity int16
}

// DecodeEnv decodes a 9 byte environment payload captured at at.
func DecodeEnv(payload []byte, at time.Time) (EnvStatus, error) {
	if len(payload) != EnvSize {
		return EnvStatus{}, invalidf(KindEnv, "length %d, want %d", len(payload), EnvSize)
	}
	if payload[0] != telegram.TagEnv {
		return EnvStatus{}, invalidf(KindEnv, "tag 0x%02X", payload[0])
	}

	return EnvStatus{
		Snapshot: Snapshot{captured: at},
		lens:     int16(binary.LittleEndian.Uint16(payload[1:3])),
		cpu:      int16(binary.LittleEndian.Uint16(payload[3:5])),
		ambient:  int16(binary.LittleEndian.Uint16(payload[5:7])),
		humidity: int16(binary.LittleEndian.Uint16(payload[7:9])),
	}, nil
}

func (s EnvStatus) TemperatureLens() float64    { return float64(s.lens) / 10.0 }
func (s EnvStatus) TemperatureCPU() float64     { return float64(s.cpu) / 10.0 }
func (s EnvStatus) TemperatureAmbient() float64 { return float64(s.ambient) / 10.0 }

// Humidity is the relative humidity in percent.
func (s EnvStatus) Humidity() float64 { return float64(s.humidity) / 10.0 }
