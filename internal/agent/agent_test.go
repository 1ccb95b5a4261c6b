package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Schera-ole/fleetagent/internal/config"
	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/payload"
	"github.com/Schera-ole/fleetagent/internal/source"
)

type stubSource struct {
	set models.MetricSet
}

func (s stubSource) Category() models.Category              { return s.set.Category() }
func (s stubSource) Sample(context.Context) models.MetricSet { return s.set }

func newTestAgent(t *testing.T, backendURL string) *Agent {
	t.Helper()
	cfg := config.DefaultAgentConfig()
	cfg.BackendURL = backendURL
	cfg.APIToken = "token"
	cfg.InstanceName = "Lake House"
	cfg.StateDir = t.TempDir()
	cfg.MaxRetries = 0
	cfg.ControlAddr = ""
	require.NoError(t, cfg.Validate())

	a, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	// Sources that touch the host are replaced with fixed ones
	a.sources = []source.Source{
		stubSource{set: models.UnavailableSet(models.Backups, "supervisor not available")},
		stubSource{set: models.NewMetricSet(models.Performance, map[string]models.Value{"cpu_percent": models.Number(12.5)})},
		stubSource{set: models.NewMetricSet(models.System, map[string]models.Value{"hostname": models.String("ha")})},
	}
	return a
}

func TestRunCycle_Delivers(t *testing.T) {
	received := make(chan models.Payload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/metrics", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		var p models.Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ack":"ok"}`))
	}))
	defer server.Close()

	a := newTestAgent(t, server.URL)
	require.NoError(t, a.RunCycle(context.Background()))

	p := <-received
	assert.Equal(t, models.SchemaVersion, p.SchemaVersion)
	assert.Equal(t, a.Identity().InstanceID, p.InstanceID)
	assert.Equal(t, "Lake House", p.InstanceName)
	assert.Equal(t, config.Version, p.AgentVersion)

	// Sets arrive in category order regardless of source order
	require.Len(t, p.MetricSets, 3)
	assert.Equal(t, models.System, p.MetricSets[0].Category())
	assert.Equal(t, models.Performance, p.MetricSets[1].Category())
	assert.Equal(t, models.Backups, p.MetricSets[2].Category())
	assert.Equal(t, "supervisor not available", p.MetricSets[2].Err())

	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.SourceUnavailable.WithLabelValues("backups")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.metrics.SourceUnavailable.WithLabelValues("system")))
}

func TestRunCycle_DeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	a := newTestAgent(t, server.URL)
	err := a.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, agenterrors.KindAuth, agenterrors.KindOf(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.DeliveryFailures.WithLabelValues("auth")))
}

func TestNew_PersistsIdentity(t *testing.T) {
	cfg := config.DefaultAgentConfig()
	cfg.BackendURL = "http://localhost:8100"
	cfg.APIToken = "token"
	cfg.StateDir = t.TempDir()

	first, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	second, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, first.Identity().InstanceID, second.Identity().InstanceID)
}

func TestBuildSources(t *testing.T) {
	sources := BuildSources(config.DefaultAgentConfig(), nil, nil)

	var got []models.Category
	for _, src := range sources {
		got = append(got, src.Category())
	}
	assert.ElementsMatch(t, models.Categories, got)
}

func TestRun_StopsOnCancel(t *testing.T) {
	var deliveries atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/metrics" {
			deliveries.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := newTestAgent(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	// The first cycle starts immediately
	require.Eventually(t, func() bool { return deliveries.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.Equal(t, int32(1), deliveries.Load())
}

func TestCollectAndAssemble_UnreadableCertFile(t *testing.T) {
	sources := []source.Source{
		stubSource{set: models.NewMetricSet(models.Performance, map[string]models.Value{"cpu_percent": models.Number(12.5)})},
		source.NewSecuritySource(nil, filepath.Join(t.TempDir(), "missing.pem")),
		stubSource{set: models.NewMetricSet(models.System, map[string]models.Value{"hostname": models.String("ha")})},
	}

	sets := source.Collect(context.Background(), sources, time.Second, zap.NewNop().Sugar())
	identity := models.Identity{InstanceID: "0b7f6f86-6c2b-4c55-9d43-8a4f0c1d2e3f", InstanceName: "Cabin", AgentVersion: config.Version}
	p := payload.Assemble(sets, identity, time.Now())

	require.Len(t, p.MetricSets, 3)
	assert.Equal(t, models.System, p.MetricSets[0].Category())
	assert.Empty(t, p.MetricSets[0].Err())
	assert.Equal(t, models.Performance, p.MetricSets[1].Category())
	assert.Empty(t, p.MetricSets[1].Err())

	security := p.MetricSets[2]
	assert.Equal(t, models.Security, security.Category())
	assert.Contains(t, security.Err(), "missing.pem")
	assert.Equal(t, len(models.SecurityFields), security.UnavailableCount())
}
