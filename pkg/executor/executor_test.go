package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/task"
	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want worker.Request
	}{
		{
			"analyze repository: cortside/coeus",
			worker.AnalyzeRequest{Owner: "cortside", Name: "coeus"},
		},
		{
			"Analyze repository: cortside/coeus, branch: develop",
			worker.AnalyzeRequest{Owner: "cortside", Name: "coeus", Branch: "develop"},
		},
		{
			"discover repositories",
			worker.DiscoverRequest{},
		},
		{
			"discover repositories in cortside",
			worker.DiscoverRequest{Organization: "cortside"},
		},
		{
			"discover repositories topic: messaging",
			worker.DiscoverRequest{Topic: "messaging"},
		},
		{
			"discover repositories in cortside topic: messaging",
			worker.DiscoverRequest{Organization: "cortside", Topic: "messaging"},
		},
		{
			"map relationships: cortside/cortside.common",
			worker.MapRelationshipsRequest{Owner: "cortside", Name: "cortside.common"},
		},
		{
			"tell me about the platform",
			worker.GenericRequest{Text: "tell me about the platform"},
		},
		{
			"  analyze repository: a/b  ",
			worker.AnalyzeRequest{Owner: "a", Name: "b"},
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCommand(tt.text), "text: %q", tt.text)
	}
}

// slowWorker blocks until its context is canceled or release is closed.
type slowWorker struct {
	started chan struct{}
	release chan struct{}
}

func (w *slowWorker) Name() string { return "slow" }

func (w *slowWorker) Card(baseURL string) a2a.AgentCard {
	return a2a.AgentCard{Name: "slow", URL: baseURL}
}

func (w *slowWorker) Execute(ctx context.Context, req worker.Request) (*worker.Result, error) {
	close(w.started)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.release:
		return &worker.Result{Answer: "done"}, nil
	}
}

func newExecutor(t *testing.T, w worker.Worker) *Executor {
	t.Helper()
	e := New(w, task.NewManager(task.NewMemoryStore(), nil), nil)
	t.Cleanup(e.Close)
	return e
}

func sendText(t *testing.T, e *Executor, text string) *a2a.Task {
	t.Helper()
	msg := a2a.NewTextMessage(a2a.MessageRoleUser, text)
	result, err := e.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg})
	require.NoError(t, err)
	require.NotNil(t, result.Task)
	return result.Task
}

func waitForState(t *testing.T, e *Executor, taskID string, state a2a.TaskState) *a2a.Task {
	t.Helper()
	var got *a2a.Task
	require.Eventually(t, func() bool {
		var err error
		got, err = e.GetTask(context.Background(), a2a.TaskQueryParams{TaskID: taskID})
		return err == nil && got.Status.State == state
	}, 3*time.Second, 10*time.Millisecond, "task never reached %s", state)
	return got
}

func TestExecutorCompletesTask(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	e := newExecutor(t, worker.NewAnalysis(catalog))

	created := sendText(t, e, "analyze repository: cortside/coeus")
	assert.Equal(t, a2a.TaskStateSubmitted, created.Status.State)

	done := waitForState(t, e, created.ID, a2a.TaskStateCompleted)
	require.NotEmpty(t, done.Artifacts)

	// The artifact is a decodable data: URI carrying the result.
	raw, err := a2a.DecodeArtifact(done.Artifacts[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "cortside/coeus")

	// History walked submitted -> working -> completed.
	require.Len(t, done.History, 3)
	assert.Equal(t, a2a.TaskStateWorking, done.History[1].State)
}

func TestExecutorRecordsFailure(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	e := newExecutor(t, worker.NewAnalysis(catalog))

	created := sendText(t, e, "analyze repository: nobody/nothing")
	failed := waitForState(t, e, created.ID, a2a.TaskStateFailed)
	assert.Contains(t, failed.Status.Message, "not found")
	assert.Empty(t, failed.Artifacts)
}

func TestExecutorCancelAbortsWork(t *testing.T) {
	w := &slowWorker{started: make(chan struct{}), release: make(chan struct{})}
	e := newExecutor(t, w)

	created := sendText(t, e, "anything")
	<-w.started

	canceled, err := e.CancelTask(context.Background(), a2a.TaskCancelParams{
		TaskID: created.ID,
		Reason: "Test cancellation",
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)

	// The task stays canceled; the aborted worker never overwrites it.
	time.Sleep(50 * time.Millisecond)
	got, err := e.GetTask(context.Background(), a2a.TaskQueryParams{TaskID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, got.Status.State)
}

func TestExecutorContinuationRequiresPendingTask(t *testing.T) {
	w := &slowWorker{started: make(chan struct{}), release: make(chan struct{})}
	e := newExecutor(t, w)

	created := sendText(t, e, "anything")
	<-w.started

	// The task is still working; a follow-up send is refused with the
	// message-format code rather than a cancellation code.
	msg := a2a.NewTextMessage(a2a.MessageRoleUser, "more input")
	_, err := e.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg, TaskID: created.ID})
	require.Error(t, err)

	var terr *task.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, a2a.ErrCodeBadMessageFormat, terr.Code)

	close(w.release)
	waitForState(t, e, created.ID, a2a.TaskStateCompleted)
}

func TestExecutorCloseCancelsInFlight(t *testing.T) {
	w := &slowWorker{started: make(chan struct{}), release: make(chan struct{})}
	e := New(w, task.NewManager(task.NewMemoryStore(), nil), nil)

	created := sendText(t, e, "anything")
	<-w.started

	e.Close()

	got, err := e.GetTask(context.Background(), a2a.TaskQueryParams{TaskID: created.ID})
	require.NoError(t, err)
	// Close aborts the goroutine; the task is left working, not completed.
	assert.NotEqual(t, a2a.TaskStateCompleted, got.Status.State)

	// New work is refused after Close.
	msg := a2a.NewTextMessage(a2a.MessageRoleUser, "more")
	_, err = e.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg})
	assert.Error(t, err)
}

func TestExecutorListTasks(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	e := newExecutor(t, worker.NewDiscovery(catalog))

	msg := a2a.NewTextMessage(a2a.MessageRoleUser, "discover repositories")
	msg.ContextID = "conv-1"
	result, err := e.SendMessage(context.Background(), a2a.MessageSendParams{Message: msg, ContextID: "conv-1"})
	require.NoError(t, err)
	waitForState(t, e, result.Task.ID, a2a.TaskStateCompleted)

	tasks, err := e.ListTasks(context.Background(), a2a.TaskListParams{ContextID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, result.Task.ID, tasks[0].ID)
}
