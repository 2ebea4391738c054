// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(address byte, payload []byte) []byte {
	b, err := Encode(address, payload)
	if err != nil {
		panic(err)
	}
	return b
}

func isEncoding(err error) bool {
	_, ok := errors.Cause(err).(*EncodingError)
	return ok
}

// ============================================================
// Hex digits
// ============================================================

func TestHexDigit(t *testing.T) {
	for n := byte(0); n < 16; n++ {
		d, err := HexDigit(n)
		require.NoError(t, err)
		v, err := NibbleValue(d)
		require.NoError(t, err)
		assert.Equal(t, n, v)
	}

	_, err := HexDigit(0x10)
	assert.True(t, isEncoding(err))
}

func TestNibbleValueRejects(t *testing.T) {
	for _, c := range []byte{'/', ':', '@', 'G', 'a', 'f', 0x00, 0xFF} {
		_, err := NibbleValue(c)
		assert.True(t, isEncoding(err), "char 0x%02X", c)
	}
}

// ============================================================
// Encode / Decode
// ============================================================

func TestEncodeScenario(t *testing.T) {
	frame, err := Encode(DefaultAddress, []byte{'S'})
	require.NoError(t, err)

	// 0x55 + '9' '9' '0' '1' '5' '3' = 400 = 0x190
	want := []byte{0x55, '9', '9', '0', '1', '5', '3', '9', '0', 0x0D}
	assert.Equal(t, want, frame)
	assert.Len(t, frame, 1*2+FrameOverhead)

	tg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, byte(0x99), tg.Address)
	assert.Equal(t, []byte("S"), tg.Payload)
	assert.False(t, tg.FromSlave())
}

func TestDecodeAlteredChecksumDigits(t *testing.T) {
	frame := mustEncode(DefaultAddress, []byte{'S'})

	for _, pos := range []int{len(frame) - 3, len(frame) - 2} {
		bad := append([]byte(nil), frame...)
		if bad[pos] == '1' {
			bad[pos] = '2'
		} else {
			bad[pos] = '1'
		}
		_, err := Decode(bad)
		assert.True(t, IsMalformed(err), "pos %d: %v", pos, err)
	}
}

func TestEncodeReply(t *testing.T) {
	frame, err := EncodeReply(0x12, []byte{'Z', 0x10, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(StartSlave), frame[0])

	tg, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, tg.FromSlave())
	assert.Equal(t, byte(0x12), tg.Address)
	assert.Equal(t, byte('Z'), tg.Tag())

	again, err := tg.Bytes()
	require.NoError(t, err)
	assert.Equal(t, frame, again)
}

func TestEncodeEmptyAndMaxPayload(t *testing.T) {
	frame, err := Encode(0x01, nil)
	require.NoError(t, err)
	assert.Len(t, frame, MinFrameSize)

	tg, err := Decode(frame)
	require.NoError(t, err)
	assert.Empty(t, tg.Payload)
	assert.Equal(t, byte(0), tg.Tag())

	payload := make([]byte, MaxPayloadSize)
	frame, err = Encode(0x01, payload)
	require.NoError(t, err)
	assert.Len(t, frame, MaxFrameSize)

	_, err = Encode(0x01, make([]byte, MaxPayloadSize+1))
	assert.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	valid := mustEncode(DefaultAddress, []byte{'T', 0x01})

	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), valid...))
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"too short", valid[:7]},
		{"too long", make([]byte, MaxFrameSize+1)},
		{"bad start", mutate(func(b []byte) []byte { b[0] = 0x56; return b })},
		{"bad end", mutate(func(b []byte) []byte { b[len(b)-1] = 0x0A; return b })},
		{"length mismatch", mutate(func(b []byte) []byte { b[4] = '3'; return b })},
		{"lowercase digit", mutate(func(b []byte) []byte { b[1] = 'a'; return b })},
		{"truncated", append(append([]byte(nil), valid[:len(valid)-3]...), EndByte)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tg, err := Decode(tc.frame)
			assert.True(t, IsMalformed(err), "%v", err)
			assert.Nil(t, tg.Payload)
		})
	}
}

func TestDecodeInvalidHexInPayload(t *testing.T) {
	// Well framed with a matching checksum, but the payload digits are not hex
	frame := []byte{StartSlave, '9', '9', '0', '1', 'G', 'G'}
	sum, err := appendHex(nil, Checksum(frame))
	require.NoError(t, err)
	frame = append(append(frame, sum...), EndByte)

	_, err = Decode(frame)
	assert.True(t, IsMalformed(err))
	assert.False(t, isEncoding(err))
}

func TestSingleBitFlipIsDetected(t *testing.T) {
	frame := mustEncode(DefaultAddress, []byte{'S', 0x01, 0x02, 0x80, 0xFF, 0x00, 0x10, 0x20})

	for i := 0; i < len(frame); i++ {
		for bit := uint(0); bit < 8; bit++ {
			bad := append([]byte(nil), frame...)
			bad[i] ^= 1 << bit
			_, err := Decode(bad)
			assert.True(t, IsMalformed(err), "byte %d bit %d", i, bit)
		}
	}
}

func TestChecksumWraps(t *testing.T) {
	assert.Equal(t, byte(0x90), Checksum([]byte{0x55, '9', '9', '0', '1', '5', '3'}))
	assert.Equal(t, byte(0x00), Checksum([]byte{0x80, 0x80}))
	assert.Equal(t, byte(0x00), Checksum(nil))
}

// ============================================================
// Messages
// ============================================================

func TestMessagePayloads(t *testing.T) {
	assert.Equal(t, []byte{'S'}, RequestBasic.Payload())
	assert.Equal(t, []byte{'T'}, RequestEnv.Payload())
	assert.Equal(t, []byte{'Z'}, RequestShaft.Payload())
	assert.Equal(t, []byte{'W'}, RequestShaftLegacy.Payload())
	assert.Equal(t, []byte{'C', 0x01}, CommandOpenCover.Payload())
	assert.Equal(t, []byte{'C', 0x0B}, CommandReset.Payload())
	assert.True(t, CommandFanOn.IsCommand())
	assert.False(t, RequestEnv.IsCommand())
}

func TestMessageByName(t *testing.T) {
	for _, name := range MessageNames() {
		m, ok := MessageByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, m.Name())

		back, ok := MessageForPayload(m.Payload())
		require.True(t, ok)
		assert.Equal(t, m, back)
	}

	_, ok := MessageByName("launch")
	assert.False(t, ok)
}

func TestMessageEncode(t *testing.T) {
	frame, err := CommandCloseCover.Encode(DefaultAddress)
	require.NoError(t, err)

	tg, err := Decode(frame)
	require.NoError(t, err)
	want := CommandCloseCover.Telegram(DefaultAddress)
	assert.Equal(t, want.Address, tg.Address)
	assert.Equal(t, want.Payload, tg.Payload)
}

// ============================================================
// Formatting
// ============================================================

func TestFormat(t *testing.T) {
	assert.Equal(t, "OPEN_COVER", FormatMessage([]byte{'C', 0x01}))
	assert.Equal(t, "COMMAND_ACK", FormatMessage([]byte{'C', 0x01, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, "BASIC_STATUS", FormatMessage([]byte{'S', 0x01, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, "ENV_STATUS", FormatMessage([]byte{'T', 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, "EMPTY", FormatMessage(nil))
	assert.Equal(t, "55 0D", FormatHex([]byte{0x55, 0x0D}))
	assert.Equal(t, "-", FormatHex(nil))

	tg := New(DefaultAddress, []byte{'S'})
	at := time.Date(2025, 1, 1, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "[21:30:00.000] host->dev BASIC addr=99 len=1 payload=53", FormatTelegram(tg, at))
}
