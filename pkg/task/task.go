// Package task is the custodian of the A2A task state machine.
//
// A Task is the unit of work exposed across the agent boundary. This
// package implements:
//   - The full state machine (submitted → working → terminal)
//   - Append-only status history and artifact collection
//   - Cancellation with idempotent-from-the-caller semantics
//   - An interchangeable Store abstraction (memory and database/sql)
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// allowedTransitions enumerates every legal state edge. Any edge not
// listed fails.
var allowedTransitions = map[a2a.TaskState][]a2a.TaskState{
	a2a.TaskStateSubmitted: {
		a2a.TaskStateWorking,
		a2a.TaskStateCanceled,
		a2a.TaskStateFailed,
		a2a.TaskStateRejected,
		a2a.TaskStateAuthRequired,
		a2a.TaskStateInputRequired,
	},
	a2a.TaskStateWorking: {
		a2a.TaskStateCompleted,
		a2a.TaskStateFailed,
		a2a.TaskStateCanceled,
		a2a.TaskStateInputRequired,
		a2a.TaskStateAuthRequired,
	},
	a2a.TaskStateInputRequired: {
		a2a.TaskStateWorking,
		a2a.TaskStateCanceled,
		a2a.TaskStateFailed,
	},
	a2a.TaskStateAuthRequired: {
		a2a.TaskStateWorking,
		a2a.TaskStateCanceled,
		a2a.TaskStateFailed,
	},
}

func transitionAllowed(from, to a2a.TaskState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateParams configure a new task.
type CreateParams struct {
	ContextID      string
	InitialMessage *a2a.Message
	Metadata       map[string]any
}

// Update describes a status mutation.
type Update struct {
	State     a2a.TaskState
	Message   string
	Artifacts []a2a.Artifact
}

// Manager owns every task it created. All state changes serialize per
// task id; concurrent updates to the same task never interleave.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager on top of a Store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// taskLock returns the per-task critical section.
func (m *Manager) taskLock(taskID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[taskID] = lock
	}
	return lock
}

func (m *Manager) dropLock(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, taskID)
}

// Create generates a task in state submitted with one history entry.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*a2a.Task, error) {
	status := a2a.TaskStatus{
		State:     a2a.TaskStateSubmitted,
		Timestamp: time.Now().UTC(),
	}
	if params.InitialMessage != nil {
		status.Message = a2a.TextOf(*params.InitialMessage)
	}

	t := &a2a.Task{
		ID:        uuid.New().String(),
		ContextID: params.ContextID,
		Status:    status,
		History:   []a2a.TaskStatus{status},
		Metadata:  params.Metadata,
	}

	if err := m.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	m.logger.Debug("task created", "task_id", t.ID, "context_id", t.ContextID)
	return cloneTask(t), nil
}

// Get retrieves a task by id.
func (m *Manager) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return cloneTask(t), nil
}

// UpdateStatus appends a new status to the task history. Terminal tasks
// reject any further transition; disallowed edges fail.
func (m *Manager) UpdateStatus(ctx context.Context, taskID string, update Update) (*a2a.Task, error) {
	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.Status.State.IsTerminal() {
		return nil, ErrTaskNotCancelable
	}
	if !transitionAllowed(t.Status.State, update.State) {
		return nil, &Error{
			Code:    a2a.ErrCodeTaskNotCancelable,
			Message: fmt.Sprintf("transition %s -> %s is not allowed", t.Status.State, update.State),
		}
	}

	status := a2a.TaskStatus{
		State:     update.State,
		Timestamp: time.Now().UTC(),
		Message:   update.Message,
	}
	t.Status = status
	t.History = append(t.History, status)
	t.Artifacts = append(t.Artifacts, update.Artifacts...)

	if err := m.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	m.logger.Debug("task status updated", "task_id", taskID, "state", update.State)
	return cloneTask(t), nil
}

// AddArtifact appends an artifact without a state change.
func (m *Manager) AddArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) (*a2a.Task, error) {
	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	t.Artifacts = append(t.Artifacts, artifact)
	if err := m.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}
	return cloneTask(t), nil
}

// Cancel transitions the task to canceled. Canceling an already canceled
// task yields ErrTaskAlreadyCanceled; any other terminal state yields
// ErrTaskNotCancelable.
func (m *Manager) Cancel(ctx context.Context, taskID, reason string) (*a2a.Task, error) {
	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.Status.State == a2a.TaskStateCanceled {
		return nil, ErrTaskAlreadyCanceled
	}
	if t.Status.State.IsTerminal() {
		return nil, ErrTaskNotCancelable
	}

	message := reason
	if message == "" {
		message = "task canceled"
	}
	status := a2a.TaskStatus{
		State:     a2a.TaskStateCanceled,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
	t.Status = status
	t.History = append(t.History, status)

	if err := m.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	m.logger.Info("task canceled", "task_id", taskID, "reason", reason)
	return cloneTask(t), nil
}

// Start transitions the task to working.
func (m *Manager) Start(ctx context.Context, taskID, message string) (*a2a.Task, error) {
	return m.UpdateStatus(ctx, taskID, Update{State: a2a.TaskStateWorking, Message: message})
}

// Complete transitions the task to completed, attaching any artifacts.
func (m *Manager) Complete(ctx context.Context, taskID, message string, artifacts ...a2a.Artifact) (*a2a.Task, error) {
	return m.UpdateStatus(ctx, taskID, Update{
		State:     a2a.TaskStateCompleted,
		Message:   message,
		Artifacts: artifacts,
	})
}

// Fail transitions the task to failed with the error message.
func (m *Manager) Fail(ctx context.Context, taskID, message string) (*a2a.Task, error) {
	return m.UpdateStatus(ctx, taskID, Update{State: a2a.TaskStateFailed, Message: message})
}

// ListByContext lists tasks grouped under one context id.
func (m *Manager) ListByContext(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	tasks, err := m.store.ListByContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	cloned := make([]*a2a.Task, len(tasks))
	for i, t := range tasks {
		cloned[i] = cloneTask(t)
	}
	return cloned, nil
}

// Delete removes a task from storage.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	if err := m.store.Delete(ctx, taskID); err != nil {
		return err
	}
	m.dropLock(taskID)
	return nil
}

// StartJanitor deletes terminal tasks older than retention until ctx is
// canceled. Task destruction is a storage TTL concern, not a protocol one.
func (m *Manager) StartJanitor(ctx context.Context, retention, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx, retention)
			}
		}
	}()
}

func (m *Manager) sweep(ctx context.Context, retention time.Duration) {
	tasks, err := m.store.ListByContext(ctx, "")
	if err != nil {
		m.logger.Warn("janitor sweep failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-retention)
	for _, t := range tasks {
		if t.Status.State.IsTerminal() && t.Status.Timestamp.Before(cutoff) {
			if err := m.Delete(ctx, t.ID); err != nil {
				m.logger.Warn("janitor delete failed", "task_id", t.ID, "error", err)
			}
		}
	}
}

func cloneTask(t *a2a.Task) *a2a.Task {
	cloned := *t
	cloned.History = append([]a2a.TaskStatus(nil), t.History...)
	cloned.Artifacts = append([]a2a.Artifact(nil), t.Artifacts...)
	if t.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}
