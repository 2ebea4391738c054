// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"encoding/binary"
	"time"

	"github.com/Thermoquad/cupola/pkg/telegram"
)

// BasicSize is the payload length of a basic status reply.
const BasicSize = 8

// AliveTicksPerSecond is the rate of the slave alive counter.
const AliveTicksPerSecond = 75

// StatusFlags is byte 1 of the basic status.
type StatusFlags uint8

const (
	StatusServoMoving StatusFlags = 1 << iota
	StatusServoDirection
	StatusOpen
	StatusClosed
	StatusLensHeater
	StatusCameraHeater
	StatusIntensifier
	StatusFan
)

var statusNames = [8]string{
	"servo-moving", "servo-direction", "open", "closed",
	"lens-heater", "camera-heater", "intensifier", "fan",
}

func (f StatusFlags) Has(bit StatusFlags) bool { return f&bit != 0 }
func (f StatusFlags) Names() []string        { return flagNames(uint8(f), statusNames) }

// EnvFlags is byte 2 of the basic status. Bits 3, 4 and 6 are unused.
type EnvFlags uint8

const (
	EnvRain         EnvFlags = 1 << 0
	EnvLight        EnvFlags = 1 << 1
	EnvMasterPower  EnvFlags = 1 << 2
	EnvCoverSafety  EnvFlags = 1 << 5
	EnvServoBlocked EnvFlags = 1 << 7
)

var envNames = [8]string{
	"rain", "light", "master-power", "", "", "cover-safety", "", "servo-blocked",
}

func (f EnvFlags) Has(bit EnvFlags) bool { return f&bit != 0 }
func (f EnvFlags) Names() []string     { return flagNames(uint8(f), envNames) }

// ErrorFlags is byte 3 of the basic status.
type ErrorFlags uint8

const (
	ErrorLensTempSensor ErrorFlags = 1 << iota
	ErrorHumiditySensor
	ErrorEmergencyCloseLight
	ErrorWatchdogReset
	ErrorBrownoutReset
	ErrorMasterPower
	ErrorCPUTempSensor
	ErrorEmergencyCloseRain
)

var errorNames = [8]string{
	"lens-temp-sensor", "humidity-sensor", "emergency-close-light", "watchdog-reset",
	"brownout-reset", "master-power", "cpu-temp-sensor", "emergency-close-rain",
}

func (f ErrorFlags) Has(bit ErrorFlags) bool { return f&bit != 0 }
func (f ErrorFlags) Names() []string       { return flagNames(uint8(f), errorNames) }

func flagNames(v uint8, names [8]string) []string {
	var out []string
	for i, name := range names {
		if name != "" && v&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	return out
}

// BasicStatus is the decoded 'S' reply (or its 'C' acknowledgement echo).
type BasicStatus struct {
	Snapshot
	raw [BasicSize]byte
}

// DecodeBasic decodes an 8 byte basic status payload captured at at.
func DecodeBasic(payload []byte, at time.Time) (BasicStatus, error) {
	if len(payload) != BasicSize {
		return BasicStatus{}, invalidf(KindBasic, "length %d, want %d", len(payload), BasicSize)
	}
	if payload[0] != telegram.TagBasic && payload[0] != telegram.TagCommand {
		return BasicStatus{}, invalidf(KindBasic, "tag 0x%02X", payload[0])
	}

	s := BasicStatus{Snapshot: Snapshot{captured: at}}
	copy(s.raw[:], payload)
	return s, nil
}

// Raw returns a copy of the payload.
func (s BasicStatus) Raw() []byte {
	out := make([]byte, BasicSize)
	copy(out, s.raw[:])
	return out
}

// IsAck reports whether this status was echoed for a command.
func (s BasicStatus) IsAck() bool { return s.raw[0] == telegram.TagCommand }

func (s BasicStatus) Status() StatusFlags { return StatusFlags(s.raw[1]) }
func (s BasicStatus) Env() EnvFlags       { return EnvFlags(s.raw[2]) }
func (s BasicStatus) Errors() ErrorFlags  { return ErrorFlags(s.raw[3]) }

func (s BasicStatus) ServoMoving() bool    { return s.Status().Has(StatusServoMoving) }
func (s BasicStatus) ServoDirection() bool { return s.Status().Has(StatusServoDirection) }
func (s BasicStatus) DomeOpen() bool       { return s.Status().Has(StatusOpen) }
func (s BasicStatus) DomeClosed() bool     { return s.Status().Has(StatusClosed) }
func (s BasicStatus) LensHeater() bool     { return s.Status().Has(StatusLensHeater) }
func (s BasicStatus) CameraHeater() bool   { return s.Status().Has(StatusCameraHeater) }
func (s BasicStatus) Intensifier() bool    { return s.Status().Has(StatusIntensifier) }
func (s BasicStatus) Fan() bool            { return s.Status().Has(StatusFan) }

func (s BasicStatus) Rain() bool         { return s.Env().Has(EnvRain) }
func (s BasicStatus) Light() bool        { return s.Env().Has(EnvLight) }
func (s BasicStatus) MasterPower() bool  { return s.Env().Has(EnvMasterPower) }
func (s BasicStatus) CoverSafety() bool  { return s.Env().Has(EnvCoverSafety) }
func (s BasicStatus) ServoBlocked() bool { return s.Env().Has(EnvServoBlocked) }

// AliveCounter is the slave tick counter in units of 1/75 s.
func (s BasicStatus) AliveCounter() uint32 {
	return binary.LittleEndian.Uint32(s.raw[4:8])
}

// Uptime converts the alive counter to a duration.
func (s BasicStatus) Uptime() time.Duration {
	return time.Duration(s.AliveCounter()) * time.Second / AliveTicksPerSecond
}
