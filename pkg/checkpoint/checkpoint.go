// Package checkpoint persists orchestration session state so a crashed
// orchestrator can tell a resumed query from a fresh one. Saving is
// best-effort: callers log failures and continue.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Phases a session moves through.
const (
	PhaseStarted   = "started"
	PhaseToolCalls = "tool-calls"
	PhaseSynthesis = "synthesis"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// ToolResult records one finished tool invocation.
type ToolResult struct {
	Tool   string `json:"tool"`
	Answer string `json:"answer,omitempty"`
	Err    string `json:"error,omitempty"`
}

// State is one session's checkpoint.
type State struct {
	SessionID   string       `json:"sessionId"`
	QueryID     string       `json:"queryId"`
	UserID      string       `json:"userId,omitempty"`
	Query       string       `json:"query"`
	Phase       string       `json:"phase"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Storage persists checkpoints by session id.
type Storage interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context, sessionID string) (*State, error)
	Clear(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*State, error)
}

// ErrNotFound is returned when no checkpoint exists for a session.
var ErrNotFound = fmt.Errorf("checkpoint not found")

// Manager fronts a Storage with the best-effort semantics the
// orchestrator wants.
type Manager struct {
	storage Storage
	logger  *slog.Logger
}

// NewManager creates a Manager over storage. A nil storage disables
// checkpointing entirely.
func NewManager(storage Storage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{storage: storage, logger: logger}
}

// Save persists the state, stamping UpdatedAt. Failures are logged and
// swallowed.
func (m *Manager) Save(ctx context.Context, state *State) {
	if m.storage == nil || state == nil {
		return
	}
	state.UpdatedAt = time.Now().UTC()
	if err := m.storage.Save(ctx, state); err != nil {
		m.logger.Warn("checkpoint save failed", "session_id", state.SessionID, "error", err)
	}
}

// Load returns the checkpoint for a session, or ErrNotFound.
func (m *Manager) Load(ctx context.Context, sessionID string) (*State, error) {
	if m.storage == nil {
		return nil, ErrNotFound
	}
	return m.storage.Load(ctx, sessionID)
}

// Clear drops a session's checkpoint. Failures are logged and swallowed.
func (m *Manager) Clear(ctx context.Context, sessionID string) {
	if m.storage == nil {
		return
	}
	if err := m.storage.Clear(ctx, sessionID); err != nil {
		m.logger.Warn("checkpoint clear failed", "session_id", sessionID, "error", err)
	}
}

// List returns all pending checkpoints, for recovery on startup.
func (m *Manager) List(ctx context.Context) ([]*State, error) {
	if m.storage == nil {
		return nil, nil
	}
	return m.storage.List(ctx)
}
