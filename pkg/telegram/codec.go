// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import "github.com/juju/errors"

// Telegram is one decoded protocol message.
type Telegram struct {
	Address byte
	Payload []byte

	start byte
}

// New creates a host-originated telegram.
func New(address byte, payload []byte) Telegram {
	return Telegram{Address: address, Payload: payload, start: StartMaster}
}

// FromSlave reports whether the telegram carried the device start marker.
func (t Telegram) FromSlave() bool {
	return t.start == StartSlave
}

// Start returns the start marker the telegram was framed with.
func (t Telegram) Start() byte {
	if t.start == 0 {
		return StartMaster
	}
	return t.start
}

// Tag returns the first payload byte, or 0 for an empty payload.
func (t Telegram) Tag() byte {
	if len(t.Payload) == 0 {
		return 0
	}
	return t.Payload[0]
}

// Bytes encodes the telegram to wire format.
func (t Telegram) Bytes() ([]byte, error) {
	return encode(t.Start(), t.Address, t.Payload)
}

// Checksum computes the 8-bit wraparound sum of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Encode builds a host -> device frame.
func Encode(address byte, payload []byte) ([]byte, error) {
	return encode(StartMaster, address, payload)
}

// EncodeReply builds a device -> host frame.
func EncodeReply(address byte, payload []byte) ([]byte, error) {
	return encode(StartSlave, address, payload)
}

func encode(start, address byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errors.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, len(payload)*2+FrameOverhead)
	frame = append(frame, start)

	var err error
	if frame, err = appendHex(frame, address); err != nil {
		return nil, err
	}
	if frame, err = appendHex(frame, byte(len(payload))); err != nil {
		return nil, err
	}
	for _, b := range payload {
		if frame, err = appendHex(frame, b); err != nil {
			return nil, err
		}
	}
	if frame, err = appendHex(frame, Checksum(frame)); err != nil {
		return nil, err
	}

	return append(frame, EndByte), nil
}

// Decode validates a complete frame and returns its address and payload.
// Any violation is reported as MalformedTelegram; no partial telegram is
// ever returned.
func Decode(frame []byte) (Telegram, error) {
	n := len(frame)
	if n < MinFrameSize || n > MaxFrameSize {
		return Telegram{}, malformedf("length %d outside %d..%d", n, MinFrameSize, MaxFrameSize)
	}

	start := frame[0]
	if start != StartMaster && start != StartSlave {
		return Telegram{}, malformedf("start byte 0x%02X", start)
	}
	if frame[n-1] != EndByte {
		return Telegram{}, malformedf("end byte 0x%02X", frame[n-1])
	}

	claimed, err := parseHex(frame[3:5])
	if err != nil {
		return Telegram{}, malformedf("length field: %v", err)
	}
	if n != int(claimed)*2+FrameOverhead {
		return Telegram{}, malformedf("claimed payload %d does not fit frame length %d", claimed, n)
	}

	received, err := parseHex(frame[n-3 : n-1])
	if err != nil {
		return Telegram{}, malformedf("checksum field: %v", err)
	}
	if actual := Checksum(frame[:n-3]); actual != received {
		return Telegram{}, malformedf("%v", InvalidChecksum{Received: received, Actual: actual})
	}

	address, err := parseHex(frame[1:3])
	if err != nil {
		return Telegram{}, malformedf("address field: %v", err)
	}

	payload := make([]byte, claimed)
	for i := range payload {
		off := 5 + i*2
		if payload[i], err = parseHex(frame[off : off+2]); err != nil {
			return Telegram{}, malformedf("payload byte %d: %v", i, err)
		}
	}

	return Telegram{Address: address, Payload: payload, start: start}, nil
}
