// Package payload turns collected metric sets into the versioned payload
// delivered to the collector.
package payload

import (
	"sort"
	"time"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

// Assemble builds the payload of one cycle. Sets are ordered by category;
// collectedAt is normalized to UTC with millisecond precision. A cycle
// that produced no sets still yields a valid payload.
func Assemble(sets []models.MetricSet, identity models.Identity, collectedAt time.Time) models.Payload {
	ordered := make([]models.MetricSet, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Category().Rank() < ordered[j].Category().Rank()
	})

	return models.Payload{
		SchemaVersion: models.SchemaVersion,
		InstanceID:    identity.InstanceID,
		InstanceName:  identity.InstanceName,
		AgentVersion:  identity.AgentVersion,
		CollectedAt:   collectedAt.UTC().Truncate(time.Millisecond),
		MetricSets:    ordered,
	}
}
