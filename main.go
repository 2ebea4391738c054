// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Cupola - Astronomical Dome Supervisor
//
// Polls an all-sky camera dome controller over its serial link and keeps
// the cover closed whenever it is light, raining or humid.

package main

import (
	"fmt"
	"os"

	"github.com/juju/errors"

	"github.com/Thermoquad/cupola/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if os.Getenv("CUPOLA_DEBUG") != "" {
			fmt.Fprintln(os.Stderr, errors.ErrorStack(err))
		}
		os.Exit(1)
	}
}
