// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package report

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/pkg/eventlog"
)

const (
	defaultNetworkTimeout = 5 * time.Second

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string // prefix; status goes to <topic>/status
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

func (o MQTTOptions) StatusTopic() string { return o.Topic + "/status" }
func (o MQTTOptions) OnlineTopic() string { return o.Topic + "/online" }

func (o MQTTOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultNetworkTimeout
	}
	return o.Timeout
}

// MQTT publishes the CBOR status retained on <topic>/status. The broker
// publishes "offline" on <topic>/online when the connection is lost.
type MQTT struct {
	opts   MQTTOptions
	sink   eventlog.Sink
	client mqtt.Client

	mu   sync.Mutex
	last string // state code of the last published status
}

// ClientOptions returns the paho options for o, last will included.
func (o MQTTOptions) ClientOptions() *mqtt.ClientOptions {
	timeout := o.timeout()
	return mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(timeout * 3).
		SetKeepAlive(timeout * 6).
		SetMaxReconnectInterval(timeout * 6).
		SetPingTimeout(timeout).
		SetWriteTimeout(timeout).
		SetOrderMatters(false).
		SetWill(o.OnlineTopic(), PayloadOffline, o.QoS, true)
}

func NewMQTT(opts MQTTOptions, sink eventlog.Sink) *MQTT {
	m := &MQTT{opts: opts, sink: sink}
	mopt := opts.ClientOptions().SetOnConnectHandler(func(mqtt.Client) { m.announce() })
	m.client = mqtt.NewClient(mopt)
	return m
}

// NewMQTTWithClient uses an already built client. Connect still has to be
// called; it also announces the online marker.
func NewMQTTWithClient(client mqtt.Client, opts MQTTOptions, sink eventlog.Sink) *MQTT {
	return &MQTT{opts: opts, sink: sink, client: client}
}

// Connect blocks until the first connection succeeds or ctx is done.
// Reconnects after that happen in the background.
func (m *MQTT) Connect(ctx context.Context) error {
	for {
		err := m.wait(m.client.Connect(), "connect")
		if err == nil {
			break
		}
		eventlog.Eventf(m.sink, eventlog.Report, "mqtt %s: %v", m.opts.Broker, err)
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(time.Second):
		}
	}
	eventlog.Eventf(m.sink, eventlog.Report, "mqtt connected to %s", m.opts.Broker)
	m.announce()
	return nil
}

func (m *MQTT) announce() {
	t := m.client.Publish(m.opts.OnlineTopic(), m.opts.QoS, true, PayloadOnline)
	if err := m.wait(t, "publish online"); err != nil {
		eventlog.Eventf(m.sink, eventlog.Report, "mqtt: %v", err)
	}
}

func (m *MQTT) Report(ctx context.Context, s Status) error {
	if !m.client.IsConnected() {
		return errors.Errorf("mqtt: not connected to %s", m.opts.Broker)
	}
	payload, err := s.Encode()
	if err != nil {
		return err
	}
	if err = m.wait(m.client.Publish(m.opts.StatusTopic(), m.opts.QoS, true, payload), "publish status"); err != nil {
		return err
	}

	m.mu.Lock()
	changed := m.last != s.State
	m.last = s.State
	m.mu.Unlock()
	if changed {
		eventlog.Eventf(m.sink, eventlog.Report, "mqtt status %s (%s) bytes=%d", s.State, s.StateName, len(payload))
	}
	return nil
}

// Close publishes the offline marker itself, since a clean disconnect
// does not trigger the will.
func (m *MQTT) Close() error {
	if !m.client.IsConnected() {
		return nil
	}
	err := m.wait(m.client.Publish(m.opts.OnlineTopic(), m.opts.QoS, true, PayloadOffline), "publish offline")
	m.client.Disconnect(uint(m.opts.timeout() / time.Millisecond))
	return err
}

func (m *MQTT) wait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(m.opts.timeout()) {
		return errors.Timeoutf("mqtt %s", tag)
	}
	return errors.Annotate(t.Error(), "mqtt "+tag)
}
