package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

type stubSource struct {
	category models.Category
	sample   func(ctx context.Context) models.MetricSet
}

func (s stubSource) Category() models.Category { return s.category }

func (s stubSource) Sample(ctx context.Context) models.MetricSet { return s.sample(ctx) }

func fixed(category models.Category, metrics map[string]models.Value) stubSource {
	return stubSource{category: category, sample: func(context.Context) models.MetricSet {
		return models.NewMetricSet(category, metrics)
	}}
}

func TestCollect_IsolatesFailures(t *testing.T) {
	logger := zap.NewNop().Sugar()
	release := make(chan struct{})
	defer close(release)

	sources := []Source{
		fixed(models.Performance, map[string]models.Value{"cpu_percent": models.Number(12.5)}),
		stubSource{category: models.Security, sample: func(ctx context.Context) models.MetricSet {
			// Ignores cancellation on purpose
			<-release
			return models.NewMetricSet(models.Security, nil)
		}},
		stubSource{category: models.Database, sample: func(context.Context) models.MetricSet {
			panic("boom")
		}},
		fixed(models.Entities, map[string]models.Value{"total_entities": models.Int(3)}),
	}

	start := time.Now()
	sets := Collect(context.Background(), sources, 50*time.Millisecond, logger)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, sets, 4)
	assert.Equal(t, models.Performance, sets[0].Category())
	assert.Empty(t, sets[0].Err())
	cpu, _ := sets[0].Get("cpu_percent")
	v, ok := cpu.Float()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	assert.Equal(t, models.Security, sets[1].Category())
	assert.Equal(t, "timeout", sets[1].Err())
	assert.Equal(t, len(models.SecurityFields), sets[1].UnavailableCount())

	assert.Equal(t, models.Database, sets[2].Category())
	assert.Equal(t, "panic: boom", sets[2].Err())

	assert.Equal(t, models.Entities, sets[3].Category())
	assert.Empty(t, sets[3].Err())
}

func TestCollect_WrongCategory(t *testing.T) {
	sources := []Source{stubSource{category: models.Backups, sample: func(context.Context) models.MetricSet {
		return models.NewMetricSet(models.System, nil)
	}}}
	sets := Collect(context.Background(), sources, time.Second, zap.NewNop().Sugar())
	require.Len(t, sets, 1)
	assert.Equal(t, models.Backups, sets[0].Category())
	assert.NotEmpty(t, sets[0].Err())
}

func TestCollect_Empty(t *testing.T) {
	sets := Collect(context.Background(), nil, time.Second, zap.NewNop().Sugar())
	assert.Empty(t, sets)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(5, 0))
	assert.Equal(t, 50.0, percent(5, 10))
	assert.Equal(t, 100.0, percent(15, 10))
	assert.Equal(t, 0.0, percent(-1, 10))
	assert.Equal(t, 12.35, round(12.345678, 2))
}
