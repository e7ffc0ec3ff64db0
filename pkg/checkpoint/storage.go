package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage keeps checkpoints in a map.
type MemoryStorage struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[string]*State)}
}

func (s *MemoryStorage) Save(_ context.Context, state *State) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("checkpoint state requires a session id")
	}
	cloned := *state
	cloned.ToolResults = append([]ToolResult(nil), state.ToolResults...)

	s.mu.Lock()
	s.states[state.SessionID] = &cloned
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Load(_ context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cloned := *state
	cloned.ToolResults = append([]ToolResult(nil), state.ToolResults...)
	return &cloned, nil
}

func (s *MemoryStorage) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.states, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) List(_ context.Context) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*State, 0, len(s.states))
	for _, state := range s.states {
		cloned := *state
		out = append(out, &cloned)
	}
	return out, nil
}

// SQLStorage persists checkpoints in a database/sql table, the state
// body as JSON.
type SQLStorage struct {
	db     *sql.DB
	driver string
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	session_id TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLStorage creates the storage and its schema on db.
func NewSQLStorage(db *sql.DB, driver string) (*SQLStorage, error) {
	if _, err := db.Exec(checkpointSchema); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return &SQLStorage{db: db, driver: driver}, nil
}

func (s *SQLStorage) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStorage) Save(ctx context.Context, state *State) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("checkpoint state requires a session id")
	}
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM checkpoints WHERE session_id = %s", s.placeholder(1)),
		state.SessionID); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO checkpoints (session_id, body, updated_at) VALUES (%s, %s, %s)",
			s.placeholder(1), s.placeholder(2), s.placeholder(3)),
		state.SessionID, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStorage) Load(ctx context.Context, sessionID string) (*State, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT body FROM checkpoints WHERE session_id = %s", s.placeholder(1)),
		sessionID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &state, nil
}

func (s *SQLStorage) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM checkpoints WHERE session_id = %s", s.placeholder(1)),
		sessionID)
	return err
}

func (s *SQLStorage) List(ctx context.Context) ([]*State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT body FROM checkpoints ORDER BY updated_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var state State
		if err := json.Unmarshal([]byte(body), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		out = append(out, &state)
	}
	return out, rows.Err()
}
