// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

func exchange(t *testing.T, conn transport.Connection, m telegram.Message) telegram.Telegram {
	t.Helper()
	frame, err := m.Encode(telegram.DefaultAddress)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	asm := telegram.NewAssembler()
	buf := make([]byte, 7)
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		if frames := asm.Feed(buf[:n]); len(frames) > 0 {
			tg, err := telegram.Decode(frames[0])
			require.NoError(t, err)
			return tg
		}
	}
}

func TestDomeAnswers(t *testing.T) {
	d := New(telegram.DefaultAddress)
	conn, err := d.Open(context.Background(), transport.Endpoint{})
	require.NoError(t, err)
	defer conn.Close()

	tg := exchange(t, conn, telegram.RequestBasic)
	assert.True(t, tg.FromSlave())
	b, err := device.DecodeBasic(tg.Payload, time.Now())
	require.NoError(t, err)
	assert.True(t, b.DomeClosed())
	assert.True(t, b.MasterPower())

	d.SetHumidity(91.5)
	tg = exchange(t, conn, telegram.RequestEnv)
	e, err := device.DecodeEnv(tg.Payload, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 91.5, e.Humidity(), 1e-9)

	tg = exchange(t, conn, telegram.CommandOpenCover)
	ack, err := device.DecodeBasic(tg.Payload, time.Now())
	require.NoError(t, err)
	assert.True(t, ack.IsAck())
	assert.True(t, ack.DomeOpen())
	assert.False(t, ack.DomeClosed())

	tg = exchange(t, conn, telegram.RequestShaft)
	z, err := device.DecodeShaft(tg.Payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int16(PositionOpen), z.Position())

	assert.Equal(t, []telegram.Message{telegram.CommandOpenCover}, d.Commands())
	assert.Len(t, d.Received(), 4)
}

func TestDomeLegacyShaft(t *testing.T) {
	d := New(telegram.DefaultAddress)
	d.SetLegacy(true)
	conn, err := d.Open(context.Background(), transport.Endpoint{})
	require.NoError(t, err)
	defer conn.Close()

	tg := exchange(t, conn, telegram.RequestShaftLegacy)
	z, err := device.DecodeShaftLegacy(tg.Payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int16(PositionClosed), z.Position())
}

func TestDomeDetached(t *testing.T) {
	d := New(telegram.DefaultAddress)
	conn, err := d.Open(context.Background(), transport.Endpoint{})
	require.NoError(t, err)

	d.SetDetached(true)
	_, err = conn.Read(make([]byte, 8))
	assert.Equal(t, io.EOF, err)

	_, err = d.Open(context.Background(), transport.Endpoint{Port: "/dev/ttyS9"})
	assert.Error(t, err)
	assert.Equal(t, 1, d.Opens())
}
