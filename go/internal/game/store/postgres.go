package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists session state as a JSON blob in a single table
// keyed by join code.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the session_state table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_state (
			code       TEXT PRIMARY KEY,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create session_state table: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadState(ctx context.Context, code string) (*SessionState, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_state WHERE code = $1`, code,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &state, nil
}

func (s *PostgresStore) SaveState(ctx context.Context, code string, state *SessionState) error {
	state.SavedAt = time.Now().UTC()
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_state (code, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (code) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		code, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteState(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE code = $1`, code); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
