package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
)

// retryDelays are the waits between attempts of a statement that failed
// with a connection exception.
var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

type DBStorage struct {
	db *sql.DB
}

func NewDBStorage(dsn string) (*DBStorage, error) {
	dbConnect, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DBStorage{db: dbConnect}, nil
}

func (storage *DBStorage) Close() error {
	return storage.db.Close()
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}
	return pgconn.SafeToRetry(err)
}

func withRetry(ctx context.Context, op func() error) error {
	err := op()
	for _, delay := range retryDelays {
		if err == nil || !isRetryableError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		err = op()
	}
	return err
}

func (storage *DBStorage) SavePayload(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("error encoding payload: %w", err)
	}
	query := `INSERT INTO payloads
		(idempotency_key, instance_id, instance_name, agent_version, schema_version, collected_at, received_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	err = withRetry(ctx, func() error {
		_, err := storage.db.ExecContext(ctx, query,
			rec.Key,
			rec.Payload.InstanceID,
			rec.Payload.InstanceName,
			rec.Payload.AgentVersion,
			rec.Payload.SchemaVersion,
			rec.Payload.CollectedAt,
			rec.ReceivedAt,
			body,
		)
		return err
	})
	return saveError(err)
}

// saveError maps a conflict on the idempotency key to ErrDuplicatePayload.
func saveError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return agenterrors.ErrDuplicatePayload
	}
	return fmt.Errorf("error saving payload: %w", err)
}

func (storage *DBStorage) Latest(ctx context.Context, instanceID string) (Record, error) {
	var (
		rec  Record
		body []byte
	)
	query := `SELECT idempotency_key, received_at, payload FROM payloads
		WHERE instance_id = $1 ORDER BY received_at DESC LIMIT 1`
	err := storage.db.QueryRowContext(ctx, query, instanceID).Scan(&rec.Key, &rec.ReceivedAt, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, agenterrors.ErrPayloadNotFound
		}
		return Record{}, fmt.Errorf("error retrieving payload: %w", err)
	}
	if err := json.Unmarshal(body, &rec.Payload); err != nil {
		return Record{}, fmt.Errorf("error decoding stored payload: %w", err)
	}
	return rec, nil
}

func (storage *DBStorage) ListInstances(ctx context.Context) ([]Instance, error) {
	query := `SELECT DISTINCT ON (instance_id)
			instance_id, instance_name, agent_version, received_at,
			COUNT(*) OVER (PARTITION BY instance_id)
		FROM payloads
		ORDER BY instance_id, received_at DESC`
	rows, err := storage.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error retrieving instances: %w", err)
	}
	defer rows.Close()

	instances := make([]Instance, 0)
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.InstanceID, &inst.InstanceName, &inst.AgentVersion, &inst.LastSeen, &inst.Payloads); err != nil {
			return nil, fmt.Errorf("error scanning instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over instances: %w", err)
	}
	return instances, nil
}

func (storage *DBStorage) Ping(ctx context.Context) error {
	err := storage.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", agenterrors.ErrStorageUnavailable, err)
	}
	return nil
}

var (
	_ Repository = (*DBStorage)(nil)
	_ Repository = (*MemStorage)(nil)
)
