// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"

	"github.com/juju/errors"
)

// InvalidState reports a well-framed payload whose length or tag does not
// match the kind it claims to be.
type InvalidState struct {
	Kind   Kind
	Reason string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("invalid %s state: %s", e.Kind, e.Reason)
}

func invalidf(kind Kind, format string, args ...interface{}) error {
	return errors.Trace(&InvalidState{Kind: kind, Reason: fmt.Sprintf(format, args...)})
}

// IsInvalidState reports whether err was caused by an InvalidState.
func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidState)
	return ok
}
