// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import "sort"

// Message is an outgoing request or command, identified by its wire bytes.
// A request is a bare tag; a command is TagCommand followed by a subcode.
type Message struct {
	tag     byte
	subcode byte
	command bool
	name    string
	label   string
}

// Requests
var (
	RequestBasic       = Message{tag: TagBasic, name: "basic", label: "Request basic status"}
	RequestEnv         = Message{tag: TagEnv, name: "env", label: "Request environment status"}
	RequestShaft       = Message{tag: TagShaft, name: "shaft", label: "Request shaft position"}
	RequestShaftLegacy = Message{tag: TagShaftLegacy, name: "shaft-legacy", label: "Request shaft position (legacy)"}
)

// Commands
var (
	CommandNoop           = newCommand(SubNoop, "noop", "No operation")
	CommandOpenCover      = newCommand(SubOpenCover, "open-cover", "Open cover")
	CommandCloseCover     = newCommand(SubCloseCover, "close-cover", "Close cover")
	CommandFanOn          = newCommand(SubFanOn, "fan-on", "Turn on fan")
	CommandFanOff         = newCommand(SubFanOff, "fan-off", "Turn off fan")
	CommandIntensifierOn  = newCommand(SubIntensifierOn, "intensifier-on", "Turn on image intensifier")
	CommandIntensifierOff = newCommand(SubIntensifierOff, "intensifier-off", "Turn off image intensifier")
	CommandHeaterOn       = newCommand(SubHeaterOn, "heater-on", "Turn on hotwire heater")
	CommandHeaterOff      = newCommand(SubHeaterOff, "heater-off", "Turn off hotwire heater")
	CommandReset          = newCommand(SubReset, "reset", "Reset slave")
)

var messages = []Message{
	RequestBasic, RequestEnv, RequestShaft, RequestShaftLegacy,
	CommandNoop, CommandOpenCover, CommandCloseCover,
	CommandFanOn, CommandFanOff,
	CommandIntensifierOn, CommandIntensifierOff,
	CommandHeaterOn, CommandHeaterOff,
	CommandReset,
}

func newCommand(subcode byte, name, label string) Message {
	return Message{tag: TagCommand, subcode: subcode, command: true, name: name, label: label}
}

func (m Message) Tag() byte       { return m.tag }
func (m Message) Subcode() byte   { return m.subcode }
func (m Message) IsCommand() bool { return m.command }
func (m Message) Name() string    { return m.name }
func (m Message) Label() string   { return m.label }
func (m Message) String() string  { return m.label }

// Payload returns the wire payload: one byte for requests, two for commands.
func (m Message) Payload() []byte {
	if m.command {
		return []byte{m.tag, m.subcode}
	}
	return []byte{m.tag}
}

// Telegram addresses the message to a device.
func (m Message) Telegram(address byte) Telegram {
	return New(address, m.Payload())
}

// Encode frames the message for the device at address.
func (m Message) Encode(address byte) ([]byte, error) {
	return Encode(address, m.Payload())
}

// MessageByName resolves a CLI token such as "open-cover" or "basic".
func MessageByName(name string) (Message, bool) {
	for _, m := range messages {
		if m.name == name {
			return m, true
		}
	}
	return Message{}, false
}

// MessageForPayload finds the message whose wire payload equals p.
func MessageForPayload(p []byte) (Message, bool) {
	for _, m := range messages {
		want := m.Payload()
		if len(want) != len(p) {
			continue
		}
		if want[0] == p[0] && (len(p) == 1 || want[1] == p[1]) {
			return m, true
		}
	}
	return Message{}, false
}

// MessageNames lists every known CLI token in sorted order.
func MessageNames() []string {
	names := make([]string, 0, len(messages))
	for _, m := range messages {
		names = append(names, m.name)
	}
	sort.Strings(names)
	return names
}
