// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"github.com/juju/errors"
	"go.bug.st/serial"
)

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
	name string
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

func (s *SerialConnection) Name() string {
	return s.name
}

// OpenSerial opens a serial port at 8N1
func OpenSerial(portName string, baudRate int) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "open serial port %s", portName)
	}

	return &SerialConnection{port: port, name: portName}, nil
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Annotate(err, "list serial ports")
	}
	return ports, nil
}

// PortPresent reports whether name is among the listed serial ports.
func PortPresent(name string) (bool, error) {
	ports, err := ListPorts()
	if err != nil {
		return false, err
	}
	for _, p := range ports {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}
