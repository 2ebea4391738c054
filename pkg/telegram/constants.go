// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telegram implements the framed ASCII-hex protocol spoken by the
// dome controller.
//
// A telegram on the wire is a start marker, the device address, the payload
// length and the payload bytes, each hex-encoded as two uppercase ASCII
// digits, followed by a two digit checksum and a carriage return:
//
//	START addr(2) len(2) payload(2*len) crc(2) END
//
// The checksum is the 8-bit wraparound sum of every byte before it.
package telegram

// Framing bytes
const (
	StartMaster = 0x55 // host -> device
	StartSlave  = 0x5A // device -> host
	EndByte     = 0x0D
)

// Size limits
const (
	FrameOverhead  = 8   // start + addr(2) + len(2) + crc(2) + end
	MinFrameSize   = FrameOverhead
	MaxFrameSize   = 100
	MaxPayloadSize = (MaxFrameSize - FrameOverhead) / 2
)

// DefaultAddress is the address the dome controller answers to.
const DefaultAddress = 0x99

// Payload tags
const (
	TagBasic       = 'S'
	TagEnv         = 'T'
	TagShaft       = 'Z'
	TagShaftLegacy = 'W'
	TagCommand     = 'C'
)

// Command subcodes, second payload byte after TagCommand
const (
	SubNoop           = 0x00
	SubOpenCover      = 0x01
	SubCloseCover     = 0x02
	SubFanOn          = 0x05
	SubFanOff         = 0x06
	SubIntensifierOn  = 0x07
	SubIntensifierOff = 0x08
	SubHeaterOn       = 0x09
	SubHeaterOff      = 0x0A
	SubReset          = 0x0B
)
