// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvPort         = "CUPOLA_PORT"
	EnvWSPassword   = "CUPOLA_WS_PASSWORD"
	EnvMQTTPassword = "CUPOLA_MQTT_PASSWORD"
)

// LoadDotEnv loads a .env file from the working directory when present.
// Variables already set in the process win.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv overrides the port and fills secrets from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		c.Device.Port = v
	}
	if v := os.Getenv(EnvWSPassword); v != "" {
		c.Device.Password = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
}
