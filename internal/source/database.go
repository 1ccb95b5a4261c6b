package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "modernc.org/sqlite"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

const defaultRecorderFile = "home-assistant_v2.db"

// recorderTables are the tables owned by the recorder integration.
var recorderTables = []string{
	"events",
	"event_data",
	"event_types",
	"states",
	"states_meta",
	"state_attributes",
	"statistics",
	"statistics_meta",
	"statistics_runs",
	"statistics_short_term",
	"recorder_runs",
	"schema_changes",
}

// DatabaseSource reports the size of the recorder database. SQLite and
// PostgreSQL recorders are supported.
type DatabaseSource struct {
	env   hostenv.Environment
	dbURL string
}

// NewDatabaseSource reads the recorder at dbURL, or the default SQLite file
// in the config directory when dbURL is empty.
func NewDatabaseSource(env hostenv.Environment, dbURL string) *DatabaseSource {
	return &DatabaseSource{env: env, dbURL: dbURL}
}

func (s *DatabaseSource) Category() models.Category {
	return models.Database
}

func (s *DatabaseSource) Sample(ctx context.Context) models.MetricSet {
	if set, ok := requireEnv(s.env, models.Database); !ok {
		return set
	}
	cfg, err := s.env.Config(ctx)
	if err != nil {
		return models.UnavailableSet(models.Database, err.Error())
	}
	if !cfg.HasComponent("recorder") {
		return models.UnavailableSet(models.Database, "recorder not loaded")
	}

	dbURL := s.dbURL
	if dbURL == "" {
		dbURL = "sqlite:///" + filepath.Join(cfg.ConfigDir, defaultRecorderFile)
	}

	var metrics map[string]models.Value
	switch scheme := recorderScheme(dbURL); scheme {
	case "sqlite":
		metrics = sampleSQLite(ctx, sqlitePath(dbURL))
	case "postgresql", "postgres":
		metrics, err = samplePostgres(ctx, postgresDSN(dbURL))
		if err != nil {
			return models.UnavailableSet(models.Database, err.Error())
		}
	default:
		unsupported := models.Unavailable(fmt.Sprintf("unsupported recorder database %q", scheme))
		metrics = map[string]models.Value{
			"db_size_mb":             unsupported,
			"recorder_table_size_mb": unsupported,
			"last_purge_date":        unsupported,
		}
	}

	return models.NewMetricSet(models.Database, metrics)
}

// purgeHorizonQuery finds the oldest state the recorder still keeps. Purges
// drop everything older than the keep window, so this marks the last cut.
const purgeHorizonQuery = "SELECT MIN(last_updated_ts) FROM states"

func purgeHorizon(oldest sql.NullFloat64, err error) models.Value {
	if err != nil {
		return models.Unavailable(fmt.Sprintf("read purge horizon: %v", err))
	}
	if !oldest.Valid {
		return models.Unavailable("no recorded states")
	}
	sec, frac := math.Modf(oldest.Float64)
	return models.String(time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(time.RFC3339))
}

// recorderScheme strips a "+driver" suffix, as in "postgresql+psycopg2".
func recorderScheme(dbURL string) string {
	scheme, _, found := strings.Cut(dbURL, "://")
	if !found {
		return ""
	}
	scheme, _, _ = strings.Cut(strings.ToLower(scheme), "+")
	return scheme
}

func sqlitePath(dbURL string) string {
	path := strings.TrimPrefix(dbURL, "sqlite:///")
	path, _, _ = strings.Cut(path, "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func postgresDSN(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	u.Scheme = "postgres"
	return u.String()
}

func sampleSQLite(ctx context.Context, path string) map[string]models.Value {
	metrics := make(map[string]models.Value, 3)

	info, err := os.Stat(path)
	if err != nil {
		reason := models.Unavailable(err.Error())
		metrics["db_size_mb"] = reason
		metrics["recorder_table_size_mb"] = reason
		metrics["last_purge_date"] = reason
		return metrics
	}
	metrics["db_size_mb"] = models.Number(round(float64(info.Size())/mebibyte, 2))

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		reason := models.Unavailable(fmt.Sprintf("open recorder: %v", err))
		metrics["recorder_table_size_mb"] = reason
		metrics["last_purge_date"] = reason
		return metrics
	}
	defer db.Close()

	size, err := sqliteTableBytes(ctx, db)
	if err != nil {
		metrics["recorder_table_size_mb"] = models.Unavailable(err.Error())
	} else {
		metrics["recorder_table_size_mb"] = models.Number(round(float64(size)/mebibyte, 2))
	}

	var oldest sql.NullFloat64
	err = db.QueryRowContext(ctx, purgeHorizonQuery).Scan(&oldest)
	metrics["last_purge_date"] = purgeHorizon(oldest, err)
	return metrics
}

func sqliteTableBytes(ctx context.Context, db *sql.DB) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(recorderTables)), ",")
	args := make([]any, len(recorderTables))
	for i, table := range recorderTables {
		args[i] = table
	}
	query := "SELECT COALESCE(SUM(pgsize), 0) FROM dbstat WHERE name IN (" + placeholders + ")"

	var size int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&size); err != nil {
		return 0, fmt.Errorf("measure recorder tables: %w", err)
	}
	return size, nil
}

func samplePostgres(ctx context.Context, dsn string) (map[string]models.Value, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect recorder: %w", err)
	}
	defer conn.Close(context.Background())

	metrics := make(map[string]models.Value, 3)

	var dbSize int64
	if err := conn.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&dbSize); err != nil {
		if isConnectionError(err) {
			return nil, err
		}
		metrics["db_size_mb"] = models.Unavailable(err.Error())
	} else {
		metrics["db_size_mb"] = models.Number(round(float64(dbSize)/mebibyte, 2))
	}

	var tables int64
	for _, table := range recorderTables {
		var size int64
		err := conn.QueryRow(ctx, "SELECT pg_total_relation_size($1::regclass)", table).Scan(&size)
		switch {
		case err == nil:
			tables += size
		case isMissingTable(err):
			// Older schemas lack some tables
		case isConnectionError(err):
			return nil, err
		default:
			metrics["recorder_table_size_mb"] = models.Unavailable(err.Error())
		}
	}
	if _, failed := metrics["recorder_table_size_mb"]; !failed {
		metrics["recorder_table_size_mb"] = models.Number(round(float64(tables)/mebibyte, 2))
	}

	var oldest sql.NullFloat64
	err = conn.QueryRow(ctx, purgeHorizonQuery).Scan(&oldest)
	if err != nil && isConnectionError(err) {
		return nil, err
	}
	metrics["last_purge_date"] = purgeHorizon(oldest, err)
	return metrics, nil
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

func isConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}
	return pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded)
}
