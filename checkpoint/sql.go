package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLStore implements Store on database/sql for applications that keep a
// standard connection pool instead of pgx. It speaks the same schema as
// PostgresStore; register a PostgreSQL driver such as github.com/lib/pq.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a database/sql-backed store.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the checkpoint table and index if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure checkpoint schema: %w", err)
	}
	return nil
}

// Save durably records the checkpoint. Retrying a save with the same
// (threadID, step) hits the unique constraint and is a success no-op.
func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
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

	_, err = s.db.ExecContext(ctx, query, cp.ID, cp.ThreadID, cp.Step, historyJSON, metadataJSON, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %s step %d: %w", cp.ThreadID, cp.Step, err)
	}

	return nil
}

// Load returns the checkpoint for (threadID, step).
func (s *SQLStore) Load(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1 AND step = $2
	`
	return scanCheckpoint(s.db.QueryRowContext(ctx, query, threadID, step))
}

// LoadLatest returns the checkpoint with the highest step for the thread.
func (s *SQLStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1
		ORDER BY step DESC
		LIMIT 1
	`
	return scanCheckpoint(s.db.QueryRowContext(ctx, query, threadID))
}

// List returns all checkpoints for the thread ordered by ascending step.
func (s *SQLStore) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	query := `
		SELECT id, thread_id, step, history, metadata, created_at
		FROM ctxpg_checkpoints
		WHERE thread_id = $1
		ORDER BY step ASC
	`

	rows, err := s.db.QueryContext(ctx, query, threadID)
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
func (s *SQLStore) Prune(ctx context.Context, threadID string, keepLast int) error {
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

	if _, err := s.db.ExecContext(ctx, query, threadID, keepLast); err != nil {
		return fmt.Errorf("failed to prune checkpoints for thread %s: %w", threadID, err)
	}

	return nil
}
