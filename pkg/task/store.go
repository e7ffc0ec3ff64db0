package task

import (
	"context"
	"sync"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// Store is the backing persistence for tasks. Implementations must
// preserve the per-task ordering of History.
type Store interface {
	// Save persists the task, replacing any previous version.
	Save(ctx context.Context, t *a2a.Task) error

	// Get retrieves a task, or ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Delete removes a task. Deleting an unknown task is not an error.
	Delete(ctx context.Context, taskID string) error

	// ListByContext lists tasks with the given context id. An empty
	// context id lists every task.
	ListByContext(ctx context.Context, contextID string) ([]*a2a.Task, error)
}

// MemoryStore is the reference in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*a2a.Task)}
}

// Save persists the task.
func (s *MemoryStore) Save(_ context.Context, t *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// Get retrieves a task by id.
func (s *MemoryStore) Get(_ context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// Delete removes a task.
func (s *MemoryStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

// ListByContext lists tasks grouped under a context id.
func (s *MemoryStore) ListByContext(_ context.Context, contextID string) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*a2a.Task
	for _, t := range s.tasks {
		if contextID == "" || t.ContextID == contextID {
			result = append(result, cloneTask(t))
		}
	}
	return result, nil
}
