// Package repository stores payloads accepted by the reference collector.
package repository

import (
	"context"
	"time"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

// Record is one accepted payload.
type Record struct {
	// Key is the idempotency key sent by the agent
	Key string

	// ReceivedAt is when the collector accepted the payload
	ReceivedAt time.Time

	Payload models.Payload
}

// Instance summarizes everything stored for one installation.
type Instance struct {
	InstanceID   string    `json:"instance_id"`
	InstanceName string    `json:"instance_name,omitempty"`
	AgentVersion string    `json:"agent_version"`
	LastSeen     time.Time `json:"last_seen"`
	Payloads     int       `json:"payloads"`
}

// Repository persists accepted payloads. SavePayload returns
// ErrDuplicatePayload when the key is already stored; Latest returns
// ErrPayloadNotFound for an unknown instance.
type Repository interface {
	SavePayload(ctx context.Context, rec Record) error
	Latest(ctx context.Context, instanceID string) (Record, error)
	ListInstances(ctx context.Context) ([]Instance, error)
	Ping(ctx context.Context) error
}
