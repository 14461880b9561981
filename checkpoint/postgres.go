package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ctxpg/ctxpg/types"
)

// Schema is the DDL for the checkpoint table. Apply it with EnsureSchema or
// through your own migration tooling.
//
// The (thread_id, step) unique constraint is what makes Save idempotent:
// a retried write lands on the conflict and is a no-op. The latest pointer
// is derived as MAX(step), so out-of-order saves can never regress it.
const Schema = `
CREATE TABLE IF NOT EXISTS ctxpg_checkpoints (
	id UUID PRIMARY KEY,
	thread_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	history JSONB NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (thread_id, step)
);

CREATE INDEX IF NOT EXISTS ctxpg_checkpoints_thread_step_idx
	ON ctxpg_checkpoints (thread_id, step DESC);
`

// PostgresStore implements Store on PostgreSQL with pgx.
//
// Row-level uniqueness on (thread_id, step) serializes writes for the same
// thread; different threads write concurrently without interference.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the checkpoint table and index if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure checkpoint schema: %w", err)
	}
	return nil
}

// Save durably records the checkpoint. Retrying a save with the same
// (threadID, step) hits the unique constraint and is a success no-op.
func (s *PostgresStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	historyJSON, err := json.Marshal(cp.History)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint history: %w", err)
	}

	metadata := cp.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint metadata: %w", err)
	}

	query := `
		INSERT INTO ctxpg_checkpoints (id, thread_id, step, history, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (thread_id, step) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query, cp.ID, cp.ThreadID, cp.Step, historyJSON, metadataJSON, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %s step %d: %w", cp.ThreadID, cp.Step, err)
	}

	return nil
}

// Load returns the checkpoint for (threadID, step).
func (s *PostgresStore) Load(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1 AND step = $2
	`
	return s.queryOne(ctx, query, threadID, step)
}

// LoadLatest returns the checkpoint with the highest step for the thread.
func (s *PostgresStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1
		ORDER BY step DESC
		LIMIT 1
	`
	return s.queryOne(ctx, query, threadID)
}

// List returns all checkpoints for the thread ordered by ascending step.
func (s *PostgresStore) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1
		ORDER BY step ASC
	`

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var result []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint rows: %w", err)
	}

	return result, nil
}

// Prune removes all but the keepLast highest-step checkpoints of the thread.
func (s *PostgresStore) Prune(ctx context.Context, threadID string, keepLast int) error {
	if keepLast < 0 {
		keepLast = 0
	}

	query := `
		DELETE FROM ctxpg_checkpoints
		WHERE thread_id = $1 AND step NOT IN (
			SELECT step FROM ctxpg_checkpoints
			WHERE thread_id = $1
			ORDER BY step DESC
			LIMIT $2
		)
	`

	if _, err := s.pool.Exec(ctx, query, threadID, keepLast); err != nil {
		return fmt.Errorf("failed to prune checkpoints for thread %s: %w", threadID, err)
	}

	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*Checkpoint, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		return nil, ErrNotFound
	}

	return scanCheckpoint(rows)
}

// rowScanner is satisfied by both pgx and database/sql rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var historyJSON, metadataJSON []byte

	err := row.Scan(&cp.ID, &cp.ThreadID, &cp.Step, &historyJSON, &metadataJSON, &cp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	if err := json.Unmarshal(historyJSON, &cp.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint history: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint metadata: %w", err)
		}
	}
	if cp.History == nil {
		cp.History = []*types.Message{}
	}

	return &cp, nil
}
