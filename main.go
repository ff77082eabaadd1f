// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Hilbridge - MAVLink hardware-in-the-loop bridge
//
// Connects a physics simulator to a MAVLink autopilot over serial and UDP,
// turning simulated sensors into HIL messages and autopilot actuator
// outputs into simulator commands.

package main

import (
	"os"

	"github.com/Thermoquad/hilbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
