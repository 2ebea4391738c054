// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"fmt"

	"github.com/juju/errors"
)

// ConfigurationError rejects an out-of-range operating parameter.
// The previously applied value is kept.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ConfigErrorf builds a traced ConfigurationError.
func ConfigErrorf(field, format string, args ...interface{}) error {
	return errors.Trace(&ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// IsConfigurationError reports whether err was caused by a ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigurationError)
	return ok
}
