package repository

import (
	"context"
	"sort"
	"sync"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
)

// MemStorage implements the Repository interface using in-memory storage.
type MemStorage struct {
	// mu provides thread-safe access to the storage maps
	mu sync.RWMutex

	// keys holds every idempotency key seen so far
	keys map[string]struct{}

	// latest stores the newest record per instance id
	latest map[string]Record

	// counts stores the number of accepted payloads per instance id
	counts map[string]int
}

// NewMemStorage creates a new in-memory storage instance.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		keys:   make(map[string]struct{}),
		latest: make(map[string]Record),
		counts: make(map[string]int),
	}
}

// SavePayload stores rec unless its key was stored before.
func (ms *MemStorage) SavePayload(ctx context.Context, rec Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.keys[rec.Key]; exists {
		return agenterrors.ErrDuplicatePayload
	}
	ms.keys[rec.Key] = struct{}{}

	id := rec.Payload.InstanceID
	ms.counts[id]++
	if current, exists := ms.latest[id]; !exists || !rec.ReceivedAt.Before(current.ReceivedAt) {
		ms.latest[id] = rec
	}
	return nil
}

// Latest returns the newest record of an instance.
func (ms *MemStorage) Latest(ctx context.Context, instanceID string) (Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, exists := ms.latest[instanceID]
	if !exists {
		return Record{}, agenterrors.ErrPayloadNotFound
	}
	return rec, nil
}

// ListInstances returns one summary per instance, ordered by id.
func (ms *MemStorage) ListInstances(ctx context.Context) ([]Instance, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]Instance, 0, len(ms.latest))
	for id, rec := range ms.latest {
		result = append(result, Instance{
			InstanceID:   id,
			InstanceName: rec.Payload.InstanceName,
			AgentVersion: rec.Payload.AgentVersion,
			LastSeen:     rec.ReceivedAt,
			Payloads:     ms.counts[id],
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})
	return result, nil
}

// Ping always succeeds for in-memory storage.
func (ms *MemStorage) Ping(ctx context.Context) error {
	return nil
}
