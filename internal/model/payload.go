package models

import "time"

// SchemaVersion is bumped whenever the payload shape changes in a way the
// collector must know about.
const SchemaVersion = 1

// Identity holds the static fields stamped on every payload.
type Identity struct {
	// InstanceID is a UUID generated once per installation and persisted
	InstanceID string

	// InstanceName is the optional human readable name of the installation
	InstanceName string

	// AgentVersion is the version of the agent binary
	AgentVersion string
}

// Payload is the versioned bundle delivered to the collector once per cycle.
type Payload struct {
	// SchemaVersion identifies the payload layout
	SchemaVersion int `json:"schema_version" cbor:"schema_version"`

	// InstanceID is the stable identifier of the sending installation
	InstanceID string `json:"instance_id" cbor:"instance_id"`

	// InstanceName is the optional display name of the installation
	InstanceName string `json:"instance_name,omitempty" cbor:"instance_name,omitempty"`

	// AgentVersion is the version of the agent that produced the payload
	AgentVersion string `json:"agent_version" cbor:"agent_version"`

	// CollectedAt is the start time of the cycle, in UTC
	CollectedAt time.Time `json:"collected_at" cbor:"collected_at"`

	// MetricSets holds one entry per sampled category, in category order.
	// Always encoded, empty when nothing could be collected.
	MetricSets []MetricSet `json:"metric_sets" cbor:"metric_sets"`
}

// Set returns the metric set of the given category.
func (p Payload) Set(category Category) (MetricSet, bool) {
	for _, s := range p.MetricSets {
		if s.Category() == category {
			return s, true
		}
	}
	return MetricSet{}, false
}

// EntityDetail describes one entity that is currently unavailable.
type EntityDetail struct {
	EntityID        string     `json:"entity_id" cbor:"entity_id"`
	FriendlyName    string     `json:"friendly_name" cbor:"friendly_name"`
	Domain          string     `json:"domain" cbor:"domain"`
	Platform        string     `json:"platform" cbor:"platform"`
	State           string     `json:"state" cbor:"state"`
	LastChanged     *time.Time `json:"last_changed,omitempty" cbor:"last_changed,omitempty"`
	DurationSeconds int64      `json:"duration_seconds" cbor:"duration_seconds"`
}

// LogResult is the answer of the log retrieval service.
type LogResult struct {
	// Logs is the tail of the log file, line endings preserved
	Logs string `json:"logs"`

	// TotalLines is the number of lines in the whole file
	TotalLines int `json:"total_lines"`

	// ReturnedLines is the number of lines included in Logs
	ReturnedLines int `json:"returned_lines"`
}

// AuditEvent records one payload accepted by the collector.
type AuditEvent struct {
	// TS is the receive time in RFC 3339 format
	TS string `json:"ts"`

	// InstanceID is the sender of the payload
	InstanceID string `json:"instance_id"`

	// Key is the idempotency key the payload was stored under
	Key string `json:"key"`

	// Categories lists the metric sets contained in the payload
	Categories []string `json:"categories"`

	// IPAddress is the address of the sending agent
	IPAddress string `json:"ip_address"`
}
