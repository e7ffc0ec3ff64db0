package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	m := NewManager(store, nil)
	created, err := m.Create(ctx, CreateParams{ContextID: "conv-1"})
	require.NoError(t, err)

	_, err = m.Start(ctx, created.ID, "working on it")
	require.NoError(t, err)
	_, err = m.Complete(ctx, created.ID, "done", a2a.Artifact{ArtifactID: "a-1"})
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	require.Len(t, got.History, 3)
	assert.Equal(t, a2a.TaskStateSubmitted, got.History[0].State)
	assert.Equal(t, a2a.TaskStateWorking, got.History[1].State)
	require.Len(t, got.Artifacts, 1)
}

func TestSQLStoreListAndDelete(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &a2a.Task{ID: "t-1", ContextID: "ctx-a"}))
	require.NoError(t, store.Save(ctx, &a2a.Task{ID: "t-2", ContextID: "ctx-a"}))
	require.NoError(t, store.Save(ctx, &a2a.Task{ID: "t-3", ContextID: "ctx-b"}))

	all, err := store.ListByContext(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byContext, err := store.ListByContext(ctx, "ctx-a")
	require.NoError(t, err)
	assert.Len(t, byContext, 2)

	require.NoError(t, store.Delete(ctx, "t-1"))
	_, err = store.Get(ctx, "t-1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
