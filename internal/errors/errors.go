// Package errors defines the error taxonomy shared by the agent and the
// reference collector.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Source errors
	ErrSourceTimeout     = errors.New("source timed out")
	ErrDependencyMissing = errors.New("host dependency not available")

	// Scheduler errors
	ErrSchedulerStopped = errors.New("scheduler stopped")
	ErrCycleAbandoned   = errors.New("cycle abandoned after shutdown grace period")

	// Collector errors
	ErrPayloadNotFound    = errors.New("payload not found")
	ErrDuplicatePayload   = errors.New("payload already accepted")
	ErrUnsupportedSchema  = errors.New("unsupported schema version")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// DeliveryKind classifies a failed delivery attempt.
type DeliveryKind string

const (
	KindNetwork           DeliveryKind = "network"
	KindTimeout           DeliveryKind = "timeout"
	KindAuth              DeliveryKind = "auth"
	KindServer            DeliveryKind = "server"
	KindMalformed         DeliveryKind = "malformed"
	KindMalformedResponse DeliveryKind = "malformed_response"
	KindCanceled          DeliveryKind = "canceled"
)

// Retryable reports whether another attempt may change the outcome.
// Auth and validation failures are final.
func (k DeliveryKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// DeliveryError is returned when a payload could not be delivered.
type DeliveryError struct {
	Kind       DeliveryKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SourceError describes why one metric category could not be sampled.
type SourceError struct {
	Category string
	Reason   string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("source %s: %s", e.Category, e.Reason)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// ConfigError reports a missing or invalid configuration value. The agent
// refuses to start when one is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// LogAccessError is returned when the log source cannot be read.
type LogAccessError struct {
	Path string
	Err  error
}

func (e *LogAccessError) Error() string {
	return fmt.Sprintf("log file %s not readable: %v", e.Path, e.Err)
}

func (e *LogAccessError) Unwrap() error {
	return e.Err
}

// KindOf extracts the delivery kind from err, or "" when err is not a
// delivery failure.
func KindOf(err error) DeliveryKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
