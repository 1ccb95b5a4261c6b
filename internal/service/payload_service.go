// Package service provides the business logic layer of the reference
// collector.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Schera-ole/fleetagent/internal/audit"
	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/repository"
)

// PayloadService validates and stores payloads delivered by agents.
type PayloadService struct {
	// repository is the underlying data storage implementation
	repository repository.Repository

	// auditor receives one event per newly stored payload, may be nil
	auditor audit.AuditLogger

	now func() time.Time
}

// NewPayloadService creates a PayloadService over repo. auditor may be nil.
func NewPayloadService(repo repository.Repository, auditor audit.AuditLogger) *PayloadService {
	return &PayloadService{
		repository: repo,
		auditor:    auditor,
		now:        time.Now,
	}
}

// Accept stores p under key and returns the acknowledgement for the agent.
//
// A payload whose key was stored before is acknowledged again without
// being stored twice. When key is empty it is derived from the instance
// id and collection time, so a retried payload still deduplicates.
func (ps *PayloadService) Accept(ctx context.Context, key string, p models.Payload, remoteAddr string) (string, error) {
	if p.SchemaVersion != models.SchemaVersion {
		return "", fmt.Errorf("%w: %d", agenterrors.ErrUnsupportedSchema, p.SchemaVersion)
	}
	if _, err := uuid.Parse(p.InstanceID); err != nil {
		return "", fmt.Errorf("%w: instance_id: %v", agenterrors.ErrInvalidPayload, err)
	}
	if p.CollectedAt.IsZero() {
		return "", fmt.Errorf("%w: collected_at missing", agenterrors.ErrInvalidPayload)
	}
	if key == "" {
		key = p.InstanceID + ":" + p.CollectedAt.UTC().Format(time.RFC3339Nano)
	}

	receivedAt := ps.now().UTC()
	err := ps.repository.SavePayload(ctx, repository.Record{
		Key:        key,
		ReceivedAt: receivedAt,
		Payload:    p,
	})
	if errors.Is(err, agenterrors.ErrDuplicatePayload) {
		return key, nil
	}
	if err != nil {
		return "", err
	}

	if ps.auditor != nil {
		categories := make([]string, 0, len(p.MetricSets))
		for _, set := range p.MetricSets {
			categories = append(categories, string(set.Category()))
		}
		ps.auditor.Log(models.AuditEvent{
			TS:         receivedAt.Format(time.RFC3339),
			InstanceID: p.InstanceID,
			Key:        key,
			Categories: categories,
			IPAddress:  remoteAddr,
		})
	}
	return key, nil
}

// Latest returns the newest payload of an instance.
func (ps *PayloadService) Latest(ctx context.Context, instanceID string) (repository.Record, error) {
	return ps.repository.Latest(ctx, instanceID)
}

// Instances lists every installation that has reported.
func (ps *PayloadService) Instances(ctx context.Context) ([]repository.Instance, error) {
	return ps.repository.ListInstances(ctx)
}

// Ping checks the repository connection.
func (ps *PayloadService) Ping(ctx context.Context) error {
	return ps.repository.Ping(ctx)
}
