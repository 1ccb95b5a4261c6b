package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

// createRecorder writes a small recorder database whose oldest state was
// recorded at oldest.
func createRecorder(t *testing.T, dir string, oldest time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, defaultRecorderFile))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE states (state_id INTEGER PRIMARY KEY, entity_id TEXT, state TEXT, last_updated_ts REAL)`)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		ts := float64(oldest.Add(time.Duration(i)*time.Minute).Unix()) + 0.25
		_, err = db.Exec(`INSERT INTO states (entity_id, state, last_updated_ts) VALUES (?, ?, ?)`, "sensor.temperature", "21.5", ts)
		require.NoError(t, err)
	}
}

func TestDatabaseSource_SQLite(t *testing.T) {
	dir := t.TempDir()
	createRecorder(t, dir, time.Date(2026, 10, 18, 4, 12, 0, 0, time.UTC))
	env := &hostenv.Static{
		CoreConfig: hostenv.Config{ConfigDir: dir, Components: []string{"recorder"}},
	}

	set := NewDatabaseSource(env, "").Sample(context.Background())

	assert.Empty(t, set.Err())
	assert.ElementsMatch(t, models.DatabaseFields, set.Names())
	assert.Greater(t, number(t, set, "db_size_mb"), 0.0)
	assert.Greater(t, number(t, set, "recorder_table_size_mb"), 0.0)
	assert.Equal(t, "2026-10-18T04:12:00Z", str(t, set, "last_purge_date"))
}

func TestDatabaseSource_ThroughClient(t *testing.T) {
	dir := t.TempDir()
	createRecorder(t, dir, time.Date(2026, 9, 19, 0, 0, 0, 0, time.UTC))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/config" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":    "2026.10.1",
			"config_dir": dir,
			"components": []string{"recorder", "light"},
		})
	}))
	defer server.Close()

	client := hostenv.NewClient(server.URL, "token", time.Second)
	set := NewDatabaseSource(client, "").Sample(context.Background())

	assert.Empty(t, set.Err())
	assert.Equal(t, "2026-09-19T00:00:00Z", str(t, set, "last_purge_date"))
	assert.Zero(t, set.UnavailableCount())
}

func TestDatabaseSource_EmptyStates(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, defaultRecorderFile))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE states (state_id INTEGER PRIMARY KEY, last_updated_ts REAL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	env := &hostenv.Static{CoreConfig: hostenv.Config{ConfigDir: dir, Components: []string{"recorder"}}}
	set := NewDatabaseSource(env, "").Sample(context.Background())

	v, _ := set.Get("last_purge_date")
	assert.Equal(t, "no recorded states", v.Reason())
}

func TestPurgeHorizon(t *testing.T) {
	v := purgeHorizon(sql.NullFloat64{Float64: 1760760720.9, Valid: true}, nil)
	s, ok := v.Str()
	require.True(t, ok)
	assert.Equal(t, "2025-10-18T04:12:00Z", s)

	v = purgeHorizon(sql.NullFloat64{}, errors.New("no such column: last_updated_ts"))
	assert.False(t, v.Available())
	assert.Contains(t, v.Reason(), "no such column")
}

func TestDatabaseSource_MissingFile(t *testing.T) {
	env := &hostenv.Static{CoreConfig: hostenv.Config{ConfigDir: t.TempDir(), Components: []string{"recorder"}}}
	set := NewDatabaseSource(env, "").Sample(context.Background())

	assert.Empty(t, set.Err())
	v, _ := set.Get("db_size_mb")
	assert.False(t, v.Available())
	v, _ = set.Get("last_purge_date")
	assert.False(t, v.Available())
}

func TestDatabaseSource_NoRecorder(t *testing.T) {
	env := &hostenv.Static{CoreConfig: hostenv.Config{Components: []string{"light"}}}
	set := NewDatabaseSource(env, "").Sample(context.Background())

	assert.Equal(t, "recorder not loaded", set.Err())
	assert.Equal(t, len(models.DatabaseFields), set.UnavailableCount())
}

func TestDatabaseSource_UnsupportedEngine(t *testing.T) {
	env := &hostenv.Static{CoreConfig: hostenv.Config{Components: []string{"recorder"}}}
	set := NewDatabaseSource(env, "mysql://ha:secret@db/ha").Sample(context.Background())

	v, _ := set.Get("db_size_mb")
	assert.Contains(t, v.Reason(), "mysql")
}

func TestRecorderURLParsing(t *testing.T) {
	assert.Equal(t, "postgresql", recorderScheme("postgresql+psycopg2://ha@db/ha"))
	assert.Equal(t, "sqlite", recorderScheme("sqlite:////config/home-assistant_v2.db"))
	assert.Equal(t, "", recorderScheme("not a url"))

	assert.Equal(t, "/config/home-assistant_v2.db", sqlitePath("sqlite:////config/home-assistant_v2.db"))
	assert.Equal(t, "/data/ha.db", sqlitePath("sqlite:///data/ha.db?timeout=5"))

	assert.Equal(t, "postgres://ha:pw@db:5432/ha", postgresDSN("postgresql+psycopg2://ha:pw@db:5432/ha"))
}

func TestPostgresErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		missing    bool
		connection bool
	}{
		{"undefined table", &pgconn.PgError{Code: pgerrcode.UndefinedTable}, true, false},
		{"wrapped undefined table", fmt.Errorf("query: %w", &pgconn.PgError{Code: pgerrcode.UndefinedTable}), true, false},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, false, true},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, false, false},
		{"insufficient privilege", &pgconn.PgError{Code: pgerrcode.InsufficientPrivilege}, false, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false, true},
		{"plain error", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.missing, isMissingTable(tt.err))
			assert.Equal(t, tt.connection, isConnectionError(tt.err))
		})
	}
}

func TestDatabaseSource_PostgresUnreachable(t *testing.T) {
	env := &hostenv.Static{CoreConfig: hostenv.Config{Components: []string{"recorder"}}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens on port 1
	set := NewDatabaseSource(env, "postgresql://ha:pw@127.0.0.1:1/ha?connect_timeout=1").Sample(ctx)

	assert.Contains(t, set.Err(), "connect recorder")
	assert.Equal(t, len(models.DatabaseFields), set.UnavailableCount())
}
