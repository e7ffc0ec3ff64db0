// Package executor adapts a worker's domain logic onto the A2A task
// lifecycle. It implements the server.Service interface: message/send
// creates a task and runs the worker asynchronously while callers poll
// tasks/get for progress.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/task"
	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

// Executor drives one worker. Each in-flight task holds a cancel handle
// keyed by task id; tasks/cancel aborts the handle and Close aborts all.
type Executor struct {
	worker worker.Worker
	tasks  *task.Manager
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates an Executor for the given worker.
func New(w worker.Worker, tasks *task.Manager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		worker:  w,
		tasks:   tasks,
		logger:  logger.With("worker", w.Name()),
		cancels: make(map[string]context.CancelFunc),
	}
}

// SendMessage creates a task for the message (or continues an existing
// one by TaskID) and starts the worker. The returned task is a snapshot;
// callers observe progress through GetTask.
func (e *Executor) SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.MessageSendResult, error) {
	text := a2a.TextOf(params.Message)

	contextID := params.ContextID
	if contextID == "" {
		contextID = params.Message.ContextID
	}

	taskID := params.TaskID
	if taskID == "" {
		taskID = params.Message.TaskID
	}

	var t *a2a.Task
	var err error
	if taskID != "" {
		// Follow-up message for a pending task: resume it.
		t, err = e.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if !t.Status.State.IsPending() {
			return nil, &task.Error{
				Code:    a2a.ErrCodeBadMessageFormat,
				Message: fmt.Sprintf("task %s is %s and accepts no further input", taskID, t.Status.State),
			}
		}
	} else {
		t, err = e.tasks.Create(ctx, task.CreateParams{
			ContextID:      contextID,
			InitialMessage: &params.Message,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := e.launch(t.ID, text); err != nil {
		return nil, err
	}

	return &a2a.MessageSendResult{Task: t, MessageID: params.Message.MessageID}, nil
}

// launch registers a cancel handle and runs the worker on its own
// goroutine. Detached from the request context: the RPC returns while
// the work continues.
func (e *Executor) launch(taskID, text string) error {
	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("executor is shut down")
	}
	e.cancels[taskID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer e.clearHandle(taskID)
		e.run(runCtx, taskID, text)
	}()
	return nil
}

func (e *Executor) clearHandle(taskID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[taskID]; ok {
		cancel()
		delete(e.cancels, taskID)
	}
	e.mu.Unlock()
}

// run executes the worker and records the outcome on the task. A cancel
// observed at any point leaves the task canceled, not failed.
func (e *Executor) run(ctx context.Context, taskID, text string) {
	if _, err := e.tasks.Start(ctx, taskID, "processing request"); err != nil {
		// Typically a tasks/cancel racing the start.
		e.logger.Warn("task did not start", "task_id", taskID, "error", err)
		return
	}

	req := ParseCommand(text)
	result, err := e.worker.Execute(ctx, req)

	if ctx.Err() != nil {
		// Cancellation already recorded by CancelTask.
		e.logger.Info("task execution aborted", "task_id", taskID)
		return
	}

	storeCtx := context.Background()
	if err != nil {
		e.logger.Warn("task failed", "task_id", taskID, "error", err)
		if _, ferr := e.tasks.Fail(storeCtx, taskID, err.Error()); ferr != nil {
			e.logger.Warn("failed to record task failure", "task_id", taskID, "error", ferr)
		}
		return
	}

	artifact, err := a2a.EncodeJSONArtifact("result", result)
	if err != nil {
		e.logger.Error("failed to encode result artifact", "task_id", taskID, "error", err)
		_, _ = e.tasks.Fail(storeCtx, taskID, "failed to encode result: "+err.Error())
		return
	}

	if _, err := e.tasks.Complete(storeCtx, taskID, result.Answer, artifact); err != nil {
		e.logger.Warn("failed to record task completion", "task_id", taskID, "error", err)
	}
}

// GetTask returns the current task snapshot.
func (e *Executor) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	return e.tasks.Get(ctx, params.TaskID)
}

// CancelTask aborts the in-flight work, if any, and records the
// cancellation on the task.
func (e *Executor) CancelTask(ctx context.Context, params a2a.TaskCancelParams) (*a2a.Task, error) {
	t, err := e.tasks.Cancel(ctx, params.TaskID, params.Reason)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if cancel, ok := e.cancels[params.TaskID]; ok {
		cancel()
	}
	e.mu.Unlock()

	return t, nil
}

// ListTasks lists tasks, optionally by context.
func (e *Executor) ListTasks(ctx context.Context, params a2a.TaskListParams) ([]*a2a.Task, error) {
	return e.tasks.ListByContext(ctx, params.ContextID)
}

// Close cancels all in-flight tasks and waits for their goroutines.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	for taskID, cancel := range e.cancels {
		e.logger.Info("canceling in-flight task on shutdown", "task_id", taskID)
		cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
}
