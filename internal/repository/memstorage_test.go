package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

func record(key, instanceID string, receivedAt time.Time) Record {
	return Record{
		Key:        key,
		ReceivedAt: receivedAt,
		Payload: models.Payload{
			SchemaVersion: models.SchemaVersion,
			InstanceID:    instanceID,
			InstanceName:  "name-" + instanceID,
			AgentVersion:  "0.4.0",
			CollectedAt:   receivedAt,
			MetricSets:    []models.MetricSet{},
		},
	}
}

func TestNewMemStorage(t *testing.T) {
	storage := NewMemStorage()
	assert.NotNil(t, storage)
	assert.NotNil(t, storage.keys)
	assert.NotNil(t, storage.latest)
	assert.NotNil(t, storage.counts)
}

func TestMemStorage_SaveAndLatest(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, storage.SavePayload(ctx, record("k1", "a", base)))
	require.NoError(t, storage.SavePayload(ctx, record("k2", "a", base.Add(time.Minute))))

	rec, err := storage.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "k2", rec.Key)

	// An older payload arriving late does not replace the newest one
	require.NoError(t, storage.SavePayload(ctx, record("k0", "a", base.Add(-time.Minute))))
	rec, err = storage.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "k2", rec.Key)

	_, err = storage.Latest(ctx, "missing")
	assert.ErrorIs(t, err, agenterrors.ErrPayloadNotFound)
}

func TestMemStorage_Duplicate(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SavePayload(ctx, record("same", "a", now)))
	err := storage.SavePayload(ctx, record("same", "a", now))
	assert.ErrorIs(t, err, agenterrors.ErrDuplicatePayload)

	instances, err := storage.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, 1, instances[0].Payloads)
}

func TestMemStorage_ListInstances(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, storage.SavePayload(ctx, record("1", "b", now)))
	require.NoError(t, storage.SavePayload(ctx, record("2", "a", now)))
	require.NoError(t, storage.SavePayload(ctx, record("3", "b", now.Add(time.Hour))))

	instances, err := storage.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, "a", instances[0].InstanceID)
	assert.Equal(t, 1, instances[0].Payloads)
	assert.Equal(t, "b", instances[1].InstanceID)
	assert.Equal(t, "name-b", instances[1].InstanceName)
	assert.Equal(t, 2, instances[1].Payloads)
	assert.Equal(t, now.Add(time.Hour), instances[1].LastSeen)
}

func TestMemStorage_Ping(t *testing.T) {
	assert.NoError(t, NewMemStorage().Ping(context.Background()))
}
