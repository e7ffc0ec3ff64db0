package checkpoint

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	m := NewManager(NewMemoryStorage(), nil)
	ctx := context.Background()

	state := &State{
		SessionID: "s-1",
		QueryID:   "q-1",
		Query:     "what repositories exist?",
		Phase:     PhaseStarted,
	}
	m.Save(ctx, state)
	assert.False(t, state.UpdatedAt.IsZero(), "Save stamps UpdatedAt")

	loaded, err := m.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1", loaded.QueryID)
	assert.Equal(t, PhaseStarted, loaded.Phase)

	// Mutating the loaded copy does not leak back.
	loaded.Phase = PhaseFailed
	again, err := m.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseStarted, again.Phase)

	m.Clear(ctx, "s-1")
	_, err = m.Load(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNilStorageDisablesCheckpointing(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	m.Save(ctx, &State{SessionID: "s-1"})
	_, err := m.Load(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)

	states, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestSQLStorageRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewSQLStorage(db, "sqlite3")
	require.NoError(t, err)
	ctx := context.Background()

	state := &State{
		SessionID: "s-1",
		QueryID:   "q-1",
		Query:     "analyze coeus",
		Phase:     PhaseToolCalls,
		ToolResults: []ToolResult{
			{Tool: "list_repositories", Answer: "Found 4 repositories"},
		},
	}
	require.NoError(t, storage.Save(ctx, state))

	// Saving again replaces, not duplicates.
	state.Phase = PhaseSynthesis
	require.NoError(t, storage.Save(ctx, state))

	loaded, err := storage.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseSynthesis, loaded.Phase)
	require.Len(t, loaded.ToolResults, 1)
	assert.Equal(t, "list_repositories", loaded.ToolResults[0].Tool)

	all, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, storage.Clear(ctx, "s-1"))
	_, err = storage.Load(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
