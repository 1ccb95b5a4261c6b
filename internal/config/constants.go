// Package config provides configuration loading for the agent and the
// reference collector.
package config

import "time"

// Version is the agent version stamped on every payload. Overridden at
// build time with -ldflags "-X .../internal/config.Version=...".
var Version = "0.4.0"

const (
	// DefaultIntervalSeconds is the cycle interval used when none is
	// configured. Deployments have used both 60 and 300 seconds; the
	// longer value keeps backend load predictable for large fleets.
	DefaultIntervalSeconds = 300

	DefaultRequestTimeout    = 10 * time.Second
	DefaultMaxRetries        = 3
	DefaultBackoffBase       = 2 * time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultSourceTimeout     = 5 * time.Second
	DefaultShutdownGrace     = 15 * time.Second
	DefaultLogMaxLines       = 1000
	DefaultLogLines          = 200
	DefaultLogSensorInterval = 60 * time.Second
	DefaultControlAddr       = "127.0.0.1:8099"
	DefaultSupervisorURL     = "http://supervisor"
	DefaultStateDir          = ".fleet-agent"
	DefaultEncoding          = EncodingJSON

	EncodingJSON = "json"
	EncodingCBOR = "cbor"

	// EnvPrefix prefixes every environment variable read by the agent.
	EnvPrefix = "FLEET"
)
