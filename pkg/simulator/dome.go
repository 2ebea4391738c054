// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator is an in-memory dome controller. It answers requests
// and commands like the real slave and is used for dry runs and tests.
package simulator

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/telegram"
	"github.com/Thermoquad/cupola/pkg/transport"
)

// Shaft positions reported for a fully closed and fully open cover.
const (
	PositionClosed = 0
	PositionOpen   = 1000
)

// Dome is the simulated device state. It is shared by every connection
// opened on it.
type Dome struct {
	mu       sync.Mutex
	address  byte
	status   device.StatusFlags
	env      device.EnvFlags
	errors   device.ErrorFlags
	started  time.Time
	lens     int16 // tenths
	cpu      int16
	ambient  int16
	humidity int16
	silent   bool
	legacy   bool
	echo     bool
	detached bool
	opens    int
	received []telegram.Message
	conn     *Conn
}

// New creates a closed, powered, dry dome answering at address.
func New(address byte) *Dome {
	return &Dome{
		address:  address,
		status:   device.StatusClosed,
		env:      device.EnvMasterPower,
		started:  time.Now(),
		lens:     52,
		cpu:      315,
		ambient:  48,
		humidity: 450,
	}
}

// Open connects to the dome. It has the transport.Opener signature.
func (d *Dome) Open(ctx context.Context, e transport.Endpoint) (transport.Connection, error) {
	d.mu.Lock()
	detached := d.detached
	d.mu.Unlock()
	if detached {
		return nil, errors.NotFoundf("simulated dome at %s", e)
	}

	c := &Conn{
		dome:   d,
		asm:    telegram.NewAssembler(),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	d.mu.Lock()
	d.conn = c
	d.opens++
	d.mu.Unlock()
	return c, nil
}

// SetDetached makes Open fail, as an unplugged adapter would. The current
// connection, if any, is closed.
func (d *Dome) SetDetached(on bool) {
	d.mu.Lock()
	d.detached = on
	c := d.conn
	d.mu.Unlock()
	if on && c != nil {
		c.Close()
	}
}

// Opens returns how many connections were opened.
func (d *Dome) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *Dome) Status() device.StatusFlags {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dome) SetStatus(f device.StatusFlags) {
	d.mu.Lock()
	d.status = f
	d.mu.Unlock()
}

func (d *Dome) SetEnv(f device.EnvFlags) {
	d.mu.Lock()
	d.env = f
	d.mu.Unlock()
}

func (d *Dome) SetErrors(f device.ErrorFlags) {
	d.mu.Lock()
	d.errors = f
	d.mu.Unlock()
}

// SetHumidity sets the reported relative humidity in percent.
func (d *Dome) SetHumidity(percent float64) {
	d.mu.Lock()
	d.humidity = int16(percent * 10)
	d.mu.Unlock()
}

// SetSilent makes the dome swallow requests without replying.
func (d *Dome) SetSilent(on bool) {
	d.mu.Lock()
	d.silent = on
	d.mu.Unlock()
}

// SetEcho makes the line echo host frames back, as a shared RS-485 pair does.
func (d *Dome) SetEcho(on bool) {
	d.mu.Lock()
	d.echo = on
	d.mu.Unlock()
}

func (d *Dome) echoes() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.echo
}

// SetLegacy makes the dome answer 'W' shaft requests instead of 'Z'.
func (d *Dome) SetLegacy(on bool) {
	d.mu.Lock()
	d.legacy = on
	d.mu.Unlock()
}

// Received returns every request and command seen so far.
func (d *Dome) Received() []telegram.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]telegram.Message(nil), d.received...)
}

// Commands returns the commands seen so far, without requests.
func (d *Dome) Commands() []telegram.Message {
	var out []telegram.Message
	for _, m := range d.Received() {
		if m.IsCommand() {
			out = append(out, m)
		}
	}
	return out
}

// Inject delivers raw bytes on the current connection, as line noise would.
func (d *Dome) Inject(b []byte) {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c != nil {
		c.deliver(append([]byte(nil), b...))
	}
}

// handle applies one request and returns the reply payload, or nil.
func (d *Dome) handle(tg telegram.Telegram) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if tg.Address != d.address {
		return nil
	}
	m, ok := telegram.MessageForPayload(tg.Payload)
	if !ok {
		return nil
	}
	d.received = append(d.received, m)
	if d.silent {
		return nil
	}

	switch m.Tag() {
	case telegram.TagBasic:
		return d.basicLocked(telegram.TagBasic)
	case telegram.TagEnv:
		p := make([]byte, device.EnvSize)
		p[0] = telegram.TagEnv
		for i, v := range []int16{d.lens, d.cpu, d.ambient, d.humidity} {
			binary.LittleEndian.PutUint16(p[1+i*2:], uint16(v))
		}
		return p
	case telegram.TagShaft, telegram.TagShaftLegacy:
		legacy := m.Tag() == telegram.TagShaftLegacy
		if legacy != d.legacy {
			return nil
		}
		size := device.ShaftSize
		if legacy {
			size = device.ShaftLegacySize
		}
		p := make([]byte, size)
		p[0] = m.Tag()
		binary.LittleEndian.PutUint16(p[1:], uint16(d.positionLocked()))
		return p
	case telegram.TagCommand:
		d.applyLocked(m.Subcode())
		return d.basicLocked(telegram.TagCommand)
	}
	return nil
}

func (d *Dome) applyLocked(sub byte) {
	switch sub {
	case telegram.SubOpenCover:
		d.status = d.status&^device.StatusClosed | device.StatusOpen
	case telegram.SubCloseCover:
		d.status = d.status&^device.StatusOpen | device.StatusClosed
	case telegram.SubFanOn:
		d.status |= device.StatusFan
	case telegram.SubFanOff:
		d.status &^= device.StatusFan
	case telegram.SubIntensifierOn:
		d.status |= device.StatusIntensifier
	case telegram.SubIntensifierOff:
		d.status &^= device.StatusIntensifier
	case telegram.SubHeaterOn:
		d.status |= device.StatusLensHeater
	case telegram.SubHeaterOff:
		d.status &^= device.StatusLensHeater
	case telegram.SubReset:
		d.started = time.Now()
		d.errors |= device.ErrorWatchdogReset
	}
}

func (d *Dome) basicLocked(tag byte) []byte {
	p := make([]byte, device.BasicSize)
	p[0] = tag
	p[1] = byte(d.status)
	p[2] = byte(d.env)
	p[3] = byte(d.errors)
	ticks := uint32(time.Since(d.started) * device.AliveTicksPerSecond / time.Second)
	binary.LittleEndian.PutUint32(p[4:], ticks)
	return p
}

func (d *Dome) positionLocked() int16 {
	switch {
	case d.status&device.StatusOpen != 0:
		return PositionOpen
	case d.status&device.StatusClosed != 0:
		return PositionClosed
	default:
		return (PositionOpen - PositionClosed) / 2
	}
}

// Conn is one open link to a Dome.
type Conn struct {
	dome *Dome
	asm  *telegram.Assembler

	mu      sync.Mutex
	pending []byte
	out     chan []byte
	closed  chan struct{}
	once    sync.Once
}

// Write accepts host frames and queues the replies.
func (c *Conn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	c.mu.Lock()
	frames := c.asm.Feed(p)
	c.mu.Unlock()

	for _, raw := range frames {
		if c.dome.echoes() {
			c.deliver(raw)
		}
		tg, err := telegram.Decode(raw)
		if err != nil || tg.FromSlave() {
			continue
		}
		payload := c.dome.handle(tg)
		if payload == nil {
			continue
		}
		reply, err := telegram.EncodeReply(tg.Address, payload)
		if err != nil {
			continue
		}
		c.deliver(reply)
	}
	return len(p), nil
}

func (c *Conn) deliver(b []byte) {
	select {
	case c.out <- b:
	case <-c.closed:
	default:
		// a real line drops bytes nobody reads
	}
}

// Read blocks until a reply is available or the link is closed.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	select {
	case b := <-c.out:
		n := copy(p, b)
		if n < len(b) {
			c.mu.Lock()
			c.pending = append(c.pending, b[n:]...)
			c.mu.Unlock()
		}
		return n, nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
