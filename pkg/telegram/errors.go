// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"fmt"

	"github.com/juju/errors"
)

// MalformedTelegram reports a framing, length, boundary or checksum
// violation. It is expected under line noise; the frame is discarded.
type MalformedTelegram struct {
	Reason string
}

func (e *MalformedTelegram) Error() string {
	return "malformed telegram: " + e.Reason
}

// EncodingError reports a value that is not a valid hex digit or nibble.
type EncodingError struct {
	Value byte
	Op    string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %s 0x%02X", e.Op, e.Value)
}

// InvalidChecksum is the reason carried by a MalformedTelegram whose
// checksum digits do not match the computed sum.
type InvalidChecksum struct {
	Received byte
	Actual   byte
}

func (e InvalidChecksum) Error() string {
	return fmt.Sprintf("checksum received=%02X actual=%02X", e.Received, e.Actual)
}

func malformedf(format string, args ...interface{}) error {
	return errors.Trace(&MalformedTelegram{Reason: fmt.Sprintf(format, args...)})
}

// IsMalformed reports whether err was caused by a MalformedTelegram.
func IsMalformed(err error) bool {
	_, ok := errors.Cause(err).(*MalformedTelegram)
	return ok
}

