package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists records in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

// EnsureSchema creates the audit_events table if it does not exist.
// The daemon owns its table; there is no separate migration step.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_events (
			id           UUID PRIMARY KEY,
			timestamp    TIMESTAMPTZ NOT NULL,
			event_type   INTEGER NOT NULL,
			name         TEXT NOT NULL,
			category     TEXT NOT NULL,
			subject_pid  BIGINT,
			subject_uid  BIGINT,
			exec_args    TEXT[],
			paths        TEXT[],
			return_error BIGINT,
			line         TEXT NOT NULL,
			payload      JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_events_timestamp_idx
			ON audit_events (timestamp DESC);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure audit_events schema: %w", err)
	}
	return nil
}

// Append inserts one record. Idempotent on record id, so a retried
// batch never duplicates rows.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	const query = `
		INSERT INTO audit_events (
			id, timestamp, event_type, name, category,
			subject_pid, subject_uid, exec_args, paths,
			return_error, line, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp,
		int32(rec.EventType),
		rec.Name,
		string(rec.Category),
		nullableUint32(rec.SubjectPID),
		nullableUint32(rec.SubjectUID),
		pq.Array(rec.ExecArgs),
		pq.Array(rec.Paths),
		nullableUint32(rec.ReturnError),
		rec.Line,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	const query = `
		SELECT payload
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode audit event payload: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return records, nil
}

func nullableUint32(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
