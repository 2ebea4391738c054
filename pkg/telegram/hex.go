// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import "github.com/juju/errors"

const hexDigits = "0123456789ABCDEF"

// HexDigit converts a nibble (0-15) to its uppercase ASCII digit.
func HexDigit(nibble byte) (byte, error) {
	if nibble > 0x0F {
		return 0, errors.Trace(&EncodingError{Value: nibble, Op: "nibble out of range"})
	}
	return hexDigits[nibble], nil
}

// NibbleValue converts an uppercase ASCII hex digit back to its value.
// Only '0'-'9' (48-57) and 'A'-'F' (65-70) are accepted.
func NibbleValue(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	}
	return 0, errors.Trace(&EncodingError{Value: c, Op: "not a hex digit"})
}

// appendHex appends the MSQ and LSQ digits of b.
func appendHex(dst []byte, b byte) ([]byte, error) {
	hi, err := HexDigit(b >> 4)
	if err != nil {
		return dst, err
	}
	lo, err := HexDigit(b & 0x0F)
	if err != nil {
		return dst, err
	}
	return append(dst, hi, lo), nil
}

// parseHex decodes the two digits at src[0:2] into one byte.
func parseHex(src []byte) (byte, error) {
	hi, err := NibbleValue(src[0])
	if err != nil {
		return 0, err
	}
	lo, err := NibbleValue(src[1])
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}
