// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device decodes dome controller payloads into typed snapshots.
//
// Each snapshot carries the time it was captured and is only valid for
// StaleAfter; validity is computed when read.
package device

import "github.com/Thermoquad/cupola/pkg/telegram"

// Kind identifies one of the snapshot slots.
type Kind int

const (
	KindUnknown Kind = iota
	KindBasic
	KindEnv
	KindShaft
)

func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindEnv:
		return "env"
	case KindShaft:
		return "shaft"
	default:
		return "unknown"
	}
}

// KindOf classifies a payload by its first byte.
// Command acknowledgements echo the basic status.
func KindOf(payload []byte) Kind {
	if len(payload) == 0 {
		return KindUnknown
	}
	switch payload[0] {
	case telegram.TagBasic, telegram.TagCommand:
		return KindBasic
	case telegram.TagEnv:
		return KindEnv
	case telegram.TagShaft, telegram.TagShaftLegacy:
		return KindShaft
	default:
		return KindUnknown
	}
}
